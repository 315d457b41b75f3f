package base

import (
	"fmt"
	"time"
)

// SessionKey identifies one session stream: a (team, session) pair pinned to the
// topic-partition it is consumed from
type SessionKey struct {
	Topic     string
	Partition int32
	TeamID    string
	SessionID string
}

func (key SessionKey) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", key.Topic, key.Partition, key.TeamID, key.SessionID)
}

// Record is one unit delivered by the queue, either a whole logical record
// (ChunkCount == 1) or one fragment of a larger one.
//
// Offsets holds the source-queue offsets backing this record: a single offset for
// records straight off the queue, the union of all fragment offsets after reassembly.
type Record struct {
	Key        SessionKey
	Offsets    []int64
	Timestamp  time.Time
	ChunkID    string
	ChunkIndex int
	ChunkCount int
	Payload    []byte
}

// IsFragment tells whether the record is one piece of a chunked logical record
func (rec *Record) IsFragment() bool {
	return rec.ChunkCount > 1
}
