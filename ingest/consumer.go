package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/defs"
)

// Consumer drives a Kafka consumer group, decodes envelopes into records for the
// receiver, and implements OffsetCommitter: offsets are marked only when the
// flush protocol reports them safe, never on delivery.
type Consumer struct {
	logger   logger.Logger
	group    sarama.ConsumerGroup
	topic    string
	filter   *TeamFilter
	marks    *xsync.Map   // topic/partition => *partitionMark; flush goroutines race here across sessions
	session  atomic.Value // current sarama.ConsumerGroupSession, nil between rebalances
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  *channels.SignalAwaitable
	loopWG   sync.WaitGroup
	metrics  consumerMetrics
	receiver base.RecordReceiver
}

type consumerMetrics struct {
	inputRecordsTotal     promext.RWCounter
	inputRecordBytesTotal promext.RWCounter
	malformedRecordsTotal promext.RWCounter
	filteredRecordsTotal  promext.RWCounter
	committedOffsetsTotal promext.RWCounter
}

// partitionMark keeps the next offset to commit for one partition; the guard only
// moves forward so a late flush completion can never regress the commit
type partitionMark struct {
	mu   sync.Mutex
	next int64
}

// NewConsumer creates a Consumer; Launch starts consumption
func NewConsumer(parentLogger logger.Logger, cfg *Config, metricCreator promreg.MetricCreator) (*Consumer, error) {
	clogger := parentLogger.WithField(defs.LabelComponent, "KafkaConsumer")

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Consumer.Return.Errors = true
	if cfg.InitialOffset == "oldest" {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	filter, ferr := NewTeamFilter(cfg.TeamAllowlist)
	if ferr != nil {
		return nil, ferr
	}

	inputMetricCreator := metricCreator.AddOrGetPrefix("input_", []string{"input"}, []string{"kafka"})
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		logger:  clogger,
		group:   group,
		topic:   cfg.Topic,
		filter:  filter,
		marks:   xsync.NewMap(),
		ctx:     ctx,
		cancel:  cancel,
		stopped: channels.NewSignalAwaitable(),
		metrics: consumerMetrics{
			inputRecordsTotal:     inputMetricCreator.AddOrGetCounter("records_total", "Numbers of records received", nil, nil),
			inputRecordBytesTotal: inputMetricCreator.AddOrGetCounter("record_bytes_total", "Bytes of record values received", nil, nil),
			malformedRecordsTotal: inputMetricCreator.AddOrGetCounter("malformed_records_total", "Numbers of records dropped as undecodable", nil, nil),
			filteredRecordsTotal:  inputMetricCreator.AddOrGetCounter("filtered_records_total", "Numbers of records dropped by the team allowlist", nil, nil),
			committedOffsetsTotal: inputMetricCreator.AddOrGetCounter("committed_offset_updates_total", "Numbers of forward movements of committed offsets", nil, nil),
		},
	}, nil
}

// Launch starts consuming in background, feeding the given receiver
func (consumer *Consumer) Launch(receiver base.RecordReceiver) {
	consumer.receiver = receiver

	consumer.loopWG.Add(1)
	go func() {
		defer consumer.loopWG.Done()
		for err := range consumer.group.Errors() {
			consumer.logger.Errorf("consumer group error: %s", err.Error())
		}
	}()

	consumer.loopWG.Add(1)
	go func() {
		defer consumer.loopWG.Done()
		defer consumer.stopped.Signal()
		for {
			// Consume blocks for one group session and returns on rebalance; re-enter until stopped
			if err := consumer.group.Consume(consumer.ctx, []string{consumer.topic}, consumer); err != nil {
				consumer.logger.Errorf("consume error: %s", err.Error())
			}
			if consumer.ctx.Err() != nil {
				return
			}
		}
	}()
	consumer.logger.Infof("started, topic=%s", consumer.topic)
}

// Stop shuts down consumption and waits for the group to close
func (consumer *Consumer) Stop() {
	consumer.cancel()
	if err := consumer.group.Close(); err != nil {
		consumer.logger.Errorf("error closing consumer group: %s", err.Error())
	}
	consumer.loopWG.Wait()
	consumer.logger.Info("stopped")
}

// Stopped returns an Awaitable which is signaled when the consume loop ends
func (consumer *Consumer) Stopped() channels.Awaitable {
	return consumer.stopped
}

// CommitOffsets marks max(offsets)+1 for the partition if it advances the
// current high-water mark. Called by flush goroutines of any session; a nil
// group session (mid-rebalance) skips the mark and the offsets are redelivered.
func (consumer *Consumer) CommitOffsets(topic string, partition int32, offsets []int64) {
	if len(offsets) == 0 {
		return
	}
	next := offsets[0] + 1
	for _, offset := range offsets[1:] {
		if offset+1 > next {
			next = offset + 1
		}
	}

	markValue, _ := consumer.marks.LoadOrStore(fmt.Sprintf("%s/%d", topic, partition), &partitionMark{next: -1})
	mark := markValue.(*partitionMark)

	mark.mu.Lock()
	defer mark.mu.Unlock()
	if next <= mark.next {
		return
	}

	sessionValue := consumer.session.Load()
	if sessionValue == nil {
		// mark.next stays put so a later retry of the same offsets is not suppressed
		consumer.logger.Warnf("no group session, skip committing %s/%d offset %d", topic, partition, next)
		return
	}
	sessionValue.(sarama.ConsumerGroupSession).MarkOffset(topic, partition, next, "")
	mark.next = next
	consumer.metrics.committedOffsetsTotal.Inc()
}

// Setup implements sarama.ConsumerGroupHandler, run before the session's claims start
func (consumer *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	consumer.session.Store(session)
	consumer.logger.Infof("group session started, claims=%v", session.Claims())
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler, run after all claim loops exit.
// Revoked partitions lose their session state; unacknowledged offsets are
// redelivered to the next owner.
func (consumer *Consumer) Cleanup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		for _, partition := range partitions {
			consumer.receiver.DropPartition(topic, partition)
		}
	}
	consumer.logger.Info("group session ended")
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler: one goroutine per claimed
// partition, the single delivery path into that partition's sessions
func (consumer *Consumer) ConsumeClaim(_ sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	claimLogger := consumer.logger.WithField(defs.LabelTopic, claim.Topic()).WithField(defs.LabelPartition, claim.Partition())
	for msg := range claim.Messages() {
		consumer.metrics.inputRecordsTotal.Inc()
		consumer.metrics.inputRecordBytesTotal.Add(uint64(len(msg.Value)))

		env, err := DecodeEnvelope(msg.Value)
		if err != nil {
			consumer.metrics.malformedRecordsTotal.Inc()
			claimLogger.Warnf("drop malformed record at offset %d: %s", msg.Offset, err.Error())
			continue
		}
		if !consumer.filter.Allow(env.TeamID) {
			consumer.metrics.filteredRecordsTotal.Inc()
			continue
		}
		consumer.receiver.Accept(env.ToRecord(msg.Topic, msg.Partition, msg.Offset))
	}
	return nil
}
