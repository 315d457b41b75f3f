package bufferstore

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Buffer is one local accumulation epoch for a session: an append-only file plus
// the counts and offset set describing exactly what the file contains.
//
// A Buffer is mutated only by its owning session worker while active; after the
// flush swap it is immutable until the flush deletes it.
type Buffer struct {
	ID              string
	FilePath        string
	RecordCount     int
	ByteSize        int64
	OldestTimestamp time.Time
	offsets         map[int64]struct{}
	file            *os.File
}

func (buf *Buffer) String() string {
	return fmt.Sprintf("id=%s records=%d bytes=%d", buf.ID, buf.RecordCount, buf.ByteSize)
}

// Offsets returns the source-queue offsets absorbed into this buffer, ascending
func (buf *Buffer) Offsets() []int64 {
	offsets := maps.Keys(buf.offsets)
	slices.Sort(offsets)
	return offsets
}

// Age returns how long ago the oldest record in the buffer was added
func (buf *Buffer) Age(now time.Time) time.Duration {
	return now.Sub(buf.OldestTimestamp)
}

// CloseWrite closes the append handle; no-op if already closed. Must be called
// before the file is reopened for the flush upload.
func (buf *Buffer) CloseWrite() error {
	if buf.file == nil {
		return nil
	}
	file := buf.file
	buf.file = nil
	if err := file.Close(); err != nil {
		return &StorageError{Op: "close", Path: buf.FilePath, Err: err}
	}
	return nil
}
