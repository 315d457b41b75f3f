package defs

import (
	"time"
)

var (
	// SessionTickInterval defines how often each session worker checks the age trigger and evicts stale chunk groups
	//
	// The value bounds the extra delay of age-triggered flushes on idle sessions
	SessionTickInterval = 1 * time.Second

	// SessionSweepInterval defines how often the orchestrator scans for idle sessions to retire
	SessionSweepInterval = 10 * time.Second

	// SessionChannelSize defines the buffer size of each session worker's input channel
	//
	// Larger values smooth out upload stalls at the cost of memory per active session
	SessionChannelSize = 100

	// SessionShutdownTimeout is the duration to wait for a session worker to finish its in-flight flush at shutdown
	SessionShutdownTimeout = 60 * time.Second

	// IntermediateChannelTimeout defines the timeout of internal channel handovers.
	//
	// There is no recovery without data loss and it should be treated as a bug if such timeout happens at runtime
	IntermediateChannelTimeout = 60 * time.Second
)

var (
	// DefaultCompressionRatio is the assumed gzip output/input size ratio used by the size trigger
	// when the config leaves it unset. The estimate is fixed rather than measured per buffer.
	DefaultCompressionRatio = 0.1

	// DefaultMaxPendingAge is how long an incomplete chunk group may wait for its remaining
	// fragments before eviction, when the config leaves it unset
	DefaultMaxPendingAge = 5 * time.Minute

	// DefaultIdleTimeout is how long a session may go without records before its worker is
	// retired and remaining local files discarded, when the config leaves it unset
	DefaultIdleTimeout = 15 * time.Minute
)

// EnableTestMode turns on test mode with very short intervals and timeouts
func EnableTestMode() {
	SessionTickInterval = 50 * time.Millisecond
	SessionSweepInterval = 100 * time.Millisecond
	SessionShutdownTimeout = 5 * time.Second
}
