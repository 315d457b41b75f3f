package base

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BufferLine is the on-disk form of one logical record in a local buffer file:
// one JSON document per line, so the flushed archive stays a plain line stream
// after gzip round-trip. Payload is base64-encoded by JSON marshalling.
type BufferLine struct {
	TeamID      string `json:"team_id"`
	SessionID   string `json:"session_id"`
	TimestampMs int64  `json:"timestamp"`
	Payload     []byte `json:"payload"`
}

// EncodeBufferLine serializes a record into a newline-terminated buffer line
func EncodeBufferLine(rec Record) ([]byte, error) {
	line, err := json.Marshal(BufferLine{
		TeamID:      rec.Key.TeamID,
		SessionID:   rec.Key.SessionID,
		TimestampMs: rec.Timestamp.UnixMilli(),
		Payload:     rec.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode buffer line: %w", err)
	}
	return append(line, '\n'), nil
}

// DecodeBufferLine parses one line produced by EncodeBufferLine, without the trailing newline requirement
func DecodeBufferLine(line []byte) (BufferLine, error) {
	var decoded BufferLine
	if err := json.Unmarshal(bytes.TrimSuffix(line, []byte("\n")), &decoded); err != nil {
		return decoded, fmt.Errorf("decode buffer line: %w", err)
	}
	return decoded, nil
}
