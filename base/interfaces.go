package base

import (
	"context"
	"io"
)

// ObjectStore uploads byte streams to remote durable storage
type ObjectStore interface {
	// Upload writes the body under the given key; it blocks until the remote store
	// accepts or rejects the whole stream. Timeout policy belongs to the implementation.
	Upload(ctx context.Context, key string, body io.Reader) error
}

// OffsetCommitter is told which source offsets are safe to acknowledge after a flush.
// Implementations must tolerate out-of-order calls from concurrent flush completions.
type OffsetCommitter interface {
	CommitOffsets(topic string, partition int32, offsets []int64)
}

// RecordReceiver accepts decoded records from an input and routes them to session workers
type RecordReceiver interface {
	// Accept takes ownership of the record; it is called by at most one goroutine
	// per topic-partition
	Accept(rec Record)

	// DropPartition destroys all session state belonging to a revoked partition
	DropPartition(topic string, partition int32)
}
