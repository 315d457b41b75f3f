package session

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// Flush trigger predicates: pure functions over buffer state and configured
// thresholds. Either one firing starts a flush; the re-entrancy guard in the
// manager keeps simultaneous hits to a single flush.

// ExceedsSizeLimit estimates the post-compression size from the fixed ratio and
// fires when it crosses the limit. The estimate trades precision for not having
// to compress twice.
func ExceedsSizeLimit(byteSize int64, maxBufferSize datasize.ByteSize, compressionRatio float64) bool {
	estimatedKB := float64(byteSize) / 1024.0 * compressionRatio
	maxKB := float64(maxBufferSize.Bytes()) / 1024.0
	if maxKB <= 0 {
		return false
	}
	return estimatedKB/maxKB > 1
}

// ExceedsAgeLimit fires when the oldest buffered record has been waiting for at
// least the configured age
func ExceedsAgeLimit(oldestTimestamp time.Time, maxBufferAge time.Duration, now time.Time) bool {
	return now.Sub(oldestTimestamp) >= maxBufferAge
}
