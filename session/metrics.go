package session

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// sessionMetrics holds counters and gauges shared by all session managers under
// one orchestrator; per-session label sets would explode cardinality
type sessionMetrics struct {
	activeSessions           promext.RWGauge
	pendingChunkGroups       promext.RWGauge
	inputRecordsTotal        promext.RWCounter
	addErrorsTotal           promext.RWCounter
	reassembledRecordsTotal  promext.RWCounter
	duplicateFragmentsTotal  promext.RWCounter
	mismatchedFragmentsTotal promext.RWCounter
	evictedGroupsTotal       promext.RWCounter
	evictedFragmentsTotal    promext.RWCounter
	flushesSuccess           promext.RWCounter
	flushesFailure           promext.RWCounter
	flushNoopsTotal          promext.RWCounter
	flushedBytesTotal        promext.RWCounter
	retiredSessionsTotal     promext.RWCounter
}

func newSessionMetrics(metricCreator promreg.MetricCreator) *sessionMetrics {
	sessionMetricCreator := metricCreator.AddOrGetPrefix("session_", nil, nil)
	flushes := sessionMetricCreator.AddOrGetCounterVec("flushes_total", "Numbers of completed flush attempts", []string{"result"}, nil)

	metrics := &sessionMetrics{
		activeSessions:           sessionMetricCreator.AddOrGetGauge("active_sessions", "Numbers of currently tracked sessions", nil, nil),
		pendingChunkGroups:       sessionMetricCreator.AddOrGetGauge("pending_chunk_groups", "Numbers of incomplete chunk groups awaiting fragments", nil, nil),
		inputRecordsTotal:        sessionMetricCreator.AddOrGetCounter("input_records_total", "Numbers of records delivered to session managers", nil, nil),
		addErrorsTotal:           sessionMetricCreator.AddOrGetCounter("add_errors_total", "Numbers of records dropped due to local buffer errors", nil, nil),
		reassembledRecordsTotal:  sessionMetricCreator.AddOrGetCounter("reassembled_records_total", "Numbers of logical records completed from fragments", nil, nil),
		duplicateFragmentsTotal:  sessionMetricCreator.AddOrGetCounter("duplicate_fragments_total", "Numbers of fragments overwriting an already-received chunk index", nil, nil),
		mismatchedFragmentsTotal: sessionMetricCreator.AddOrGetCounter("mismatched_fragments_total", "Numbers of fragments whose chunk count disagrees with their group", nil, nil),
		evictedGroupsTotal:       sessionMetricCreator.AddOrGetCounter("evicted_chunk_groups_total", "Numbers of incomplete chunk groups evicted by age", nil, nil),
		evictedFragmentsTotal:    sessionMetricCreator.AddOrGetCounter("evicted_fragments_total", "Numbers of fragments discarded by chunk group eviction", nil, nil),
		flushesSuccess:           flushes.WithLabelValues("success"),
		flushesFailure:           flushes.WithLabelValues("failure"),
		flushNoopsTotal:          sessionMetricCreator.AddOrGetCounter("flush_noops_total", "Numbers of flush attempts skipped due to one already in progress", nil, nil),
		flushedBytesTotal:        sessionMetricCreator.AddOrGetCounter("flushed_bytes_total", "Uncompressed bytes of flushed buffers", nil, nil),
		retiredSessionsTotal:     sessionMetricCreator.AddOrGetCounter("retired_sessions_total", "Numbers of sessions retired after idle timeout", nil, nil),
	}
	metrics.activeSessions.Set(0)
	metrics.pendingChunkGroups.Set(0)
	return metrics
}
