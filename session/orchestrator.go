package session

import (
	"sync"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/bufferstore"
	"github.com/relex/session-sink/defs"
	"github.com/relex/session-sink/util"
)

// Orchestrator routes records to one worker goroutine per session stream, so each
// manager is mutated from a single logical control flow without internal locking.
// It owns session lifecycle: creation on first record, retirement after idle
// timeout, destruction on partition revocation and shutdown.
type Orchestrator struct {
	logger         logger.Logger
	cfg            *Config
	rootPath       string
	remoteFolder   string
	remote         base.ObjectStore
	committer      base.OffsetCommitter
	storeMetrics   *bufferstore.Metrics
	metrics        *sessionMetrics
	stopRequest    *channels.SignalAwaitable
	sweeperStopped *channels.SignalAwaitable

	mu      sync.RWMutex
	workers map[string]*sessionWorker
}

// NewOrchestrator creates an Orchestrator and starts its idle-session sweeper
func NewOrchestrator(parentLogger logger.Logger, cfg *Config, rootPath string, remoteFolder string,
	remote base.ObjectStore, committer base.OffsetCommitter, metricCreator promreg.MetricCreator) *Orchestrator {

	o := &Orchestrator{
		logger:         parentLogger.WithField(defs.LabelComponent, "SessionOrchestrator"),
		cfg:            cfg,
		rootPath:       rootPath,
		remoteFolder:   remoteFolder,
		remote:         remote,
		committer:      committer,
		storeMetrics:   bufferstore.NewMetrics(metricCreator),
		metrics:        newSessionMetrics(metricCreator),
		stopRequest:    channels.NewSignalAwaitable(),
		sweeperStopped: channels.NewSignalAwaitable(),
		workers:        make(map[string]*sessionWorker, 100),
	}
	go o.runSweeper()
	return o
}

// Accept routes one record to its session worker, creating the worker on the
// session's first record. Called by at most one goroutine per topic-partition;
// different partitions may call concurrently.
func (o *Orchestrator) Accept(rec base.Record) {
	keyStr := rec.Key.String()

	o.mu.RLock()
	worker := o.workers[keyStr]
	if worker != nil {
		worker.input <- rec
		o.mu.RUnlock()
		return
	}
	o.mu.RUnlock()

	o.mu.Lock()
	worker = o.workers[keyStr]
	if worker == nil {
		created, err := o.newWorker(rec.Key)
		if err != nil {
			o.mu.Unlock()
			o.metrics.addErrorsTotal.Inc()
			o.logger.Errorf("error creating session %s, record dropped: %s", keyStr, err.Error())
			return
		}
		o.workers[keyStr] = created
		worker = created
	}
	worker.input <- rec
	o.mu.Unlock()
}

// DropPartition destroys all session workers belonging to a revoked partition.
// Unflushed local data is discarded; unacknowledged offsets will be redelivered
// to the partition's next owner.
func (o *Orchestrator) DropPartition(topic string, partition int32) {
	o.mu.Lock()
	dropped := make([]*sessionWorker, 0, 16)
	for keyStr, worker := range o.workers {
		if worker.key.Topic == topic && worker.key.Partition == partition {
			delete(o.workers, keyStr)
			close(worker.input)
			dropped = append(dropped, worker)
		}
	}
	o.mu.Unlock()

	if len(dropped) == 0 {
		return
	}
	o.logger.Infof("drop partition %s/%d sessions=%d", topic, partition, len(dropped))
	o.waitWorkers(dropped)
}

// Shutdown stops the sweeper and all session workers, waiting for in-flight
// flushes to complete their cleanup
func (o *Orchestrator) Shutdown() {
	o.stopRequest.Signal()
	o.sweeperStopped.WaitForever()

	o.mu.Lock()
	remaining := make([]*sessionWorker, 0, len(o.workers))
	for _, worker := range o.workers {
		close(worker.input)
		remaining = append(remaining, worker)
	}
	o.workers = make(map[string]*sessionWorker)
	o.mu.Unlock()

	o.logger.Infof("shutting down session workers count=%d", len(remaining))
	o.waitWorkers(remaining)
	o.logger.Info("shut down all session workers")
}

// NumSessions returns the count of currently tracked sessions
func (o *Orchestrator) NumSessions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.workers)
}

// newWorker creates the manager and worker goroutine for a new session, must be
// called with the write lock held
func (o *Orchestrator) newWorker(key base.SessionKey) (*sessionWorker, error) {
	workerLogger := o.logger.WithField(defs.LabelSession, key.String())
	store := bufferstore.NewStore(workerLogger, o.rootPath, key, o.storeMetrics)
	manager, err := NewManager(workerLogger, key, o.cfg, o.remoteFolder, store, o.remote, o.committer, nil, o.metrics)
	if err != nil {
		return nil, err
	}

	worker := newSessionWorker(workerLogger, key, manager, o.metrics)
	o.metrics.activeSessions.Inc()
	workerLogger.Infof("new session")
	go worker.run()
	return worker, nil
}

func (o *Orchestrator) runSweeper() {
	defer o.sweeperStopped.Signal()
	for !o.stopRequest.Wait(defs.SessionSweepInterval) { // false if timeout, which is expected
		o.sweepIdleSessions(time.Now())
	}
}

func (o *Orchestrator) sweepIdleSessions(now time.Time) {
	o.mu.Lock()
	idle := make([]*sessionWorker, 0, 16)
	for keyStr, worker := range o.workers {
		if now.Sub(worker.lastRecordTime()) >= o.cfg.IdleTimeout {
			delete(o.workers, keyStr)
			close(worker.input)
			idle = append(idle, worker)
		}
	}
	o.mu.Unlock()

	for _, worker := range idle {
		o.metrics.retiredSessionsTotal.Inc()
		worker.logger.Infof("retire idle session")
	}
	o.waitWorkers(idle)
}

func (o *Orchestrator) waitWorkers(workers []*sessionWorker) {
	signals := make([]channels.Awaitable, len(workers))
	for i, worker := range workers {
		signals[i] = worker.stopped
	}
	if len(signals) == 0 {
		return
	}
	if !channels.AllAwaitables(signals...).Wait(defs.SessionShutdownTimeout + defs.IntermediateChannelTimeout) {
		o.logger.Errorf("BUG: couldn't stop session workers in time. stack=%s", util.Stack())
	}
}
