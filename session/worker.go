package session

import (
	"sync/atomic"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/defs"
)

// sessionWorker is the single owner of one Manager: every mutation flows through
// its input channel or its tick, so the no-concurrent-mutation invariant is
// structural rather than enforced by locks
type sessionWorker struct {
	logger         logger.Logger
	key            base.SessionKey
	manager        *Manager
	input          chan base.Record
	stopped        *channels.SignalAwaitable
	metrics        *sessionMetrics
	lastRecordNano int64
}

func newSessionWorker(parentLogger logger.Logger, key base.SessionKey, manager *Manager, metrics *sessionMetrics) *sessionWorker {
	return &sessionWorker{
		logger:         parentLogger,
		key:            key,
		manager:        manager,
		input:          make(chan base.Record, defs.SessionChannelSize),
		stopped:        channels.NewSignalAwaitable(),
		metrics:        metrics,
		lastRecordNano: time.Now().UnixNano(),
	}
}

func (worker *sessionWorker) run() {
	defer worker.stopped.Signal()
	defer worker.metrics.activeSessions.Dec()

	ticker := time.NewTicker(defs.SessionTickInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-worker.input:
			if !ok {
				worker.shutdown()
				return
			}
			atomic.StoreInt64(&worker.lastRecordNano, time.Now().UnixNano())
			if err := worker.manager.Add(rec); err != nil {
				worker.metrics.addErrorsTotal.Inc()
				worker.logger.Errorf("error adding record, dropped: %s", err.Error())
			}
		case now := <-ticker.C:
			worker.manager.OnTick(now)
		}
	}
}

// shutdown lets the in-flight flush finish its cleanup and offset commit, then
// destroys the manager; records still on disk are discarded by design
func (worker *sessionWorker) shutdown() {
	if !worker.manager.WaitFlushes(defs.SessionShutdownTimeout) {
		worker.logger.Errorf("failed to wait for in-flight flush")
	}
	worker.manager.Destroy()
}

func (worker *sessionWorker) lastRecordTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&worker.lastRecordNano))
}
