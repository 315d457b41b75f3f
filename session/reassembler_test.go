package session

import (
	"testing"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/stretchr/testify/assert"
)

func newTestReassembler(t *testing.T) (*reassembler, *sessionMetrics) {
	metrics := newSessionMetrics(promreg.NewMetricFactory("test_", nil, nil))
	return newReassembler(logger.WithField("test", t.Name()), metrics), metrics
}

func makeFragment(chunkID string, index int, count int, offset int64, payload string) base.Record {
	return base.Record{
		Key:        base.SessionKey{Topic: "recordings", Partition: 0, TeamID: "team-1", SessionID: "sess-1"},
		Offsets:    []int64{offset},
		Timestamp:  time.UnixMilli(1700000000000 + offset),
		ChunkID:    chunkID,
		ChunkIndex: index,
		ChunkCount: count,
		Payload:    []byte(payload),
	}
}

func TestReassembleOutOfOrder(t *testing.T) {
	asm, _ := newTestReassembler(t)
	now := time.Now()

	_, done := asm.Ingest(makeFragment("c1", 2, 3, 12, "!"), now)
	assert.False(t, done)
	_, done = asm.Ingest(makeFragment("c1", 0, 3, 10, "hello "), now)
	assert.False(t, done)
	assert.Equal(t, 1, asm.NumPendingGroups())

	assembled, done := asm.Ingest(makeFragment("c1", 1, 3, 11, "world"), now)
	assert.True(t, done)
	assert.Equal(t, "hello world!", string(assembled.Payload))
	assert.Equal(t, []int64{10, 11, 12}, assembled.Offsets)
	assert.Equal(t, 0, asm.NumPendingGroups())
	// metadata comes from the completing fragment
	assert.Equal(t, 1, assembled.ChunkIndex)
}

func TestReassembleInterleavedGroups(t *testing.T) {
	asm, _ := newTestReassembler(t)
	now := time.Now()

	_, done := asm.Ingest(makeFragment("a", 0, 2, 1, "A0"), now)
	assert.False(t, done)
	_, done = asm.Ingest(makeFragment("b", 1, 2, 2, "B1"), now)
	assert.False(t, done)
	assert.Equal(t, 2, asm.NumPendingGroups())

	recB, done := asm.Ingest(makeFragment("b", 0, 2, 3, "B0"), now)
	assert.True(t, done)
	assert.Equal(t, "B0B1", string(recB.Payload))

	recA, done := asm.Ingest(makeFragment("a", 1, 2, 4, "A1"), now)
	assert.True(t, done)
	assert.Equal(t, "A0A1", string(recA.Payload))
	assert.Equal(t, 0, asm.NumPendingGroups())
}

func TestReassembleDuplicateFragment(t *testing.T) {
	asm, metrics := newTestReassembler(t)
	now := time.Now()

	_, done := asm.Ingest(makeFragment("c1", 0, 2, 10, "old"), now)
	assert.False(t, done)
	_, done = asm.Ingest(makeFragment("c1", 0, 2, 11, "new"), now)
	assert.False(t, done)
	assert.Equal(t, uint64(1), metrics.duplicateFragmentsTotal.Get())

	assembled, done := asm.Ingest(makeFragment("c1", 1, 2, 12, "-tail"), now)
	assert.True(t, done)
	// last write wins for a repeated chunk index
	assert.Equal(t, "new-tail", string(assembled.Payload))
	assert.Equal(t, []int64{11, 12}, assembled.Offsets)
}

func TestReassembleChunkCountMismatch(t *testing.T) {
	asm, metrics := newTestReassembler(t)
	now := time.Now()

	_, done := asm.Ingest(makeFragment("c1", 0, 2, 1, "x"), now)
	assert.False(t, done)
	// disagreeing count is counted but the group keeps its original size
	assembled, done := asm.Ingest(makeFragment("c1", 1, 3, 2, "y"), now)
	assert.True(t, done)
	assert.Equal(t, "xy", string(assembled.Payload))
	assert.Equal(t, uint64(1), metrics.mismatchedFragmentsTotal.Get())
}

func TestEvictStaleGroups(t *testing.T) {
	asm, metrics := newTestReassembler(t)
	start := time.Now()

	_, _ = asm.Ingest(makeFragment("old", 0, 3, 1, "a"), start)
	_, _ = asm.Ingest(makeFragment("old", 1, 3, 2, "b"), start)
	_, _ = asm.Ingest(makeFragment("fresh", 0, 2, 3, "c"), start.Add(4*time.Minute))

	evicted := asm.EvictStale(5*time.Minute, start.Add(6*time.Minute))
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, asm.NumPendingGroups())
	assert.Equal(t, uint64(1), metrics.evictedGroupsTotal.Get())
	assert.Equal(t, uint64(2), metrics.evictedFragmentsTotal.Get())

	// the fresh group still completes after eviction of the other
	assembled, done := asm.Ingest(makeFragment("fresh", 1, 2, 4, "d"), start.Add(6*time.Minute))
	assert.True(t, done)
	assert.Equal(t, "cd", string(assembled.Payload))
}
