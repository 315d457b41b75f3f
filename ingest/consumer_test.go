package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/stretchr/testify/assert"
)

type markCall struct {
	topic     string
	partition int32
	offset    int64
}

type fakeGroupSession struct {
	mu     sync.Mutex
	marked []markCall
}

func (s *fakeGroupSession) Claims() map[string][]int32 { return nil }
func (s *fakeGroupSession) MemberID() string           { return "test-member" }
func (s *fakeGroupSession) GenerationID() int32        { return 1 }
func (s *fakeGroupSession) MarkOffset(topic string, partition int32, offset int64, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, markCall{topic: topic, partition: partition, offset: offset})
}
func (s *fakeGroupSession) Commit()                                          {}
func (s *fakeGroupSession) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *fakeGroupSession) MarkMessage(_ *sarama.ConsumerMessage, _ string)  {}
func (s *fakeGroupSession) Context() context.Context                         { return context.Background() }

func newTestConsumer(t *testing.T) *Consumer {
	inputMetricCreator := promreg.NewMetricFactory("test_", nil, nil).AddOrGetPrefix("input_", []string{"input"}, []string{"kafka"})
	return &Consumer{
		logger: logger.WithField("test", t.Name()),
		marks:  xsync.NewMap(),
		metrics: consumerMetrics{
			inputRecordsTotal:     inputMetricCreator.AddOrGetCounter("records_total", "", nil, nil),
			inputRecordBytesTotal: inputMetricCreator.AddOrGetCounter("record_bytes_total", "", nil, nil),
			malformedRecordsTotal: inputMetricCreator.AddOrGetCounter("malformed_records_total", "", nil, nil),
			filteredRecordsTotal:  inputMetricCreator.AddOrGetCounter("filtered_records_total", "", nil, nil),
			committedOffsetsTotal: inputMetricCreator.AddOrGetCounter("committed_offset_updates_total", "", nil, nil),
		},
	}
}

func TestCommitOffsetsMonotonic(t *testing.T) {
	consumer := newTestConsumer(t)
	session := &fakeGroupSession{}
	consumer.session.Store(sarama.ConsumerGroupSession(session))

	consumer.CommitOffsets("recordings", 0, []int64{5, 3, 9})
	if assert.Equal(t, 1, len(session.marked)) {
		assert.Equal(t, markCall{topic: "recordings", partition: 0, offset: 10}, session.marked[0])
	}

	// a late flush with lower offsets must not regress the committed position
	consumer.CommitOffsets("recordings", 0, []int64{7})
	assert.Equal(t, 1, len(session.marked))
	consumer.CommitOffsets("recordings", 0, []int64{9})
	assert.Equal(t, 1, len(session.marked))

	consumer.CommitOffsets("recordings", 0, []int64{10})
	if assert.Equal(t, 2, len(session.marked)) {
		assert.Equal(t, int64(11), session.marked[1].offset)
	}

	// partitions track independently
	consumer.CommitOffsets("recordings", 1, []int64{2})
	if assert.Equal(t, 3, len(session.marked)) {
		assert.Equal(t, markCall{topic: "recordings", partition: 1, offset: 3}, session.marked[2])
	}

	consumer.CommitOffsets("recordings", 0, nil)
	assert.Equal(t, 3, len(session.marked))
	assert.Equal(t, uint64(3), consumer.metrics.committedOffsetsTotal.Get())
}

func TestCommitOffsetsWithoutSession(t *testing.T) {
	consumer := newTestConsumer(t)

	// mid-rebalance there is no session to mark; the offsets stay unacknowledged
	consumer.CommitOffsets("recordings", 0, []int64{5})
	assert.Equal(t, uint64(0), consumer.metrics.committedOffsetsTotal.Get())

	// once a session is back the same offsets are still committable
	session := &fakeGroupSession{}
	consumer.session.Store(sarama.ConsumerGroupSession(session))
	consumer.CommitOffsets("recordings", 0, []int64{5})
	if assert.Equal(t, 1, len(session.marked)) {
		assert.Equal(t, int64(6), session.marked[0].offset)
	}
}
