package session

import (
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/defs"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// reassembler groups fragments sharing a chunk ID and yields the whole logical
// record once all fragments have arrived. No I/O; the only state is the group map.
//
// A duplicate chunk index overwrites the earlier fragment (last write wins) and is
// counted. Groups that never complete are bounded by EvictStale, driven from the
// session worker's tick.
type reassembler struct {
	logger  logger.Logger
	groups  map[string]*pendingGroup
	metrics *sessionMetrics
}

// pendingGroup keys received fragments by chunk index, so completion is simply
// the map reaching chunkCount entries regardless of arrival order
type pendingGroup struct {
	fragments  map[int]base.Record
	chunkCount int
	firstSeen  time.Time
}

func newReassembler(parentLogger logger.Logger, metrics *sessionMetrics) *reassembler {
	return &reassembler{
		logger:  parentLogger.WithField(defs.LabelPart, "Reassembler"),
		groups:  make(map[string]*pendingGroup),
		metrics: metrics,
	}
}

// Ingest adds one fragment. It returns the reassembled record and true when the
// fragment completes its group; the returned record carries the union of all
// fragment offsets and the metadata of the completing fragment.
func (asm *reassembler) Ingest(rec base.Record, now time.Time) (base.Record, bool) {
	group := asm.groups[rec.ChunkID]
	if group == nil {
		group = &pendingGroup{
			fragments:  make(map[int]base.Record, rec.ChunkCount),
			chunkCount: rec.ChunkCount,
			firstSeen:  now,
		}
		asm.groups[rec.ChunkID] = group
		asm.metrics.pendingChunkGroups.Inc()
	}

	if rec.ChunkCount != group.chunkCount {
		// keep the count the group was created with; behavior on disagreement is unspecified upstream
		asm.metrics.mismatchedFragmentsTotal.Inc()
		asm.logger.Warnf("fragment chunk count mismatch chunkId=%s got=%d expected=%d", rec.ChunkID, rec.ChunkCount, group.chunkCount)
	}
	if _, exists := group.fragments[rec.ChunkIndex]; exists {
		asm.metrics.duplicateFragmentsTotal.Inc()
	}
	group.fragments[rec.ChunkIndex] = rec

	if len(group.fragments) < group.chunkCount {
		return base.Record{}, false
	}

	delete(asm.groups, rec.ChunkID)
	asm.metrics.pendingChunkGroups.Dec()
	asm.metrics.reassembledRecordsTotal.Inc()
	return assembleGroup(group, rec), true
}

// EvictStale drops incomplete groups older than maxAge and returns how many
// fragments were discarded with them. Evicted fragment offsets are never
// acknowledged since their bytes reached no buffer.
func (asm *reassembler) EvictStale(maxAge time.Duration, now time.Time) int {
	numFragments := 0
	for chunkID, group := range asm.groups {
		if now.Sub(group.firstSeen) < maxAge {
			continue
		}
		asm.logger.Warnf("evict stale chunk group chunkId=%s fragments=%d/%d age=%s",
			chunkID, len(group.fragments), group.chunkCount, now.Sub(group.firstSeen))
		numFragments += len(group.fragments)
		delete(asm.groups, chunkID)
		asm.metrics.pendingChunkGroups.Dec()
		asm.metrics.evictedGroupsTotal.Inc()
		asm.metrics.evictedFragmentsTotal.Add(uint64(len(group.fragments)))
	}
	return numFragments
}

// NumPendingGroups returns the count of incomplete groups
func (asm *reassembler) NumPendingGroups() int {
	return len(asm.groups)
}

func assembleGroup(group *pendingGroup, last base.Record) base.Record {
	indexes := maps.Keys(group.fragments)
	slices.Sort(indexes)

	totalSize := 0
	for _, fragment := range group.fragments {
		totalSize += len(fragment.Payload)
	}

	payload := make([]byte, 0, totalSize)
	offsets := make([]int64, 0, len(group.fragments))
	for _, index := range indexes {
		fragment := group.fragments[index]
		payload = append(payload, fragment.Payload...)
		offsets = append(offsets, fragment.Offsets...)
	}
	slices.Sort(offsets)

	assembled := last
	assembled.Payload = payload
	assembled.Offsets = offsets
	return assembled
}
