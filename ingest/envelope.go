package ingest

import (
	"fmt"
	"time"

	"github.com/relex/session-sink/base"
	"github.com/vmihailenco/msgpack/v4"
)

// Envelope is the msgpack message format on the ingestion topic. A whole logical
// record has ChunkCount 1; a fragment carries its chunk ID and position.
type Envelope struct {
	TeamID      string `msgpack:"team_id"`
	SessionID   string `msgpack:"session_id"`
	ChunkID     string `msgpack:"chunk_id"`
	ChunkIndex  int    `msgpack:"chunk_index"`
	ChunkCount  int    `msgpack:"chunk_count"`
	TimestampMs int64  `msgpack:"timestamp"`
	Payload     []byte `msgpack:"payload"`
}

// DecodeEnvelope unpacks and validates one Kafka message value
func DecodeEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(value, &env); err != nil {
		return env, fmt.Errorf("unpack envelope: %w", err)
	}
	if env.TeamID == "" {
		return env, fmt.Errorf("envelope: empty team_id")
	}
	if env.SessionID == "" {
		return env, fmt.Errorf("envelope: empty session_id")
	}
	if env.ChunkCount < 1 {
		return env, fmt.Errorf("envelope: chunk_count %d below 1", env.ChunkCount)
	}
	if env.ChunkCount > 1 {
		if env.ChunkID == "" {
			return env, fmt.Errorf("envelope: fragment without chunk_id")
		}
		if env.ChunkIndex < 0 || env.ChunkIndex >= env.ChunkCount {
			return env, fmt.Errorf("envelope: chunk_index %d outside [0, %d)", env.ChunkIndex, env.ChunkCount)
		}
	}
	return env, nil
}

// EncodeEnvelope packs an envelope for the ingestion topic; used by tests and producer tooling
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

// ToRecord binds the envelope to its source position in the queue
func (env *Envelope) ToRecord(topic string, partition int32, offset int64) base.Record {
	return base.Record{
		Key: base.SessionKey{
			Topic:     topic,
			Partition: partition,
			TeamID:    env.TeamID,
			SessionID: env.SessionID,
		},
		Offsets:    []int64{offset},
		Timestamp:  time.UnixMilli(env.TimestampMs),
		ChunkID:    env.ChunkID,
		ChunkIndex: env.ChunkIndex,
		ChunkCount: env.ChunkCount,
		Payload:    env.Payload,
	}
}
