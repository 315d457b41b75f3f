package session

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/defs"
	"github.com/stretchr/testify/assert"
)

func newTestOrchestrator(t *testing.T, cfg *Config, objStore base.ObjectStore, committer base.OffsetCommitter) *Orchestrator {
	tlogger := logger.WithField("test", t.Name())
	mfactory := promreg.NewMetricFactory("test_", nil, nil)
	return NewOrchestrator(tlogger, cfg, t.TempDir(), "recordings/prod", objStore, committer, mfactory)
}

func acceptRecord(o *Orchestrator, key base.SessionKey, offset int64, payloadSize int) {
	payload := make([]byte, payloadSize)
	o.Accept(base.Record{
		Key:        key,
		Offsets:    []int64{offset},
		Timestamp:  time.Now(),
		ChunkCount: 1,
		Payload:    payload,
	})
}

func TestOrchestratorRoutesSessions(t *testing.T) {
	objStore := &fakeObjectStore{}
	committer := &fakeCommitter{}
	cfg := &Config{
		MaxBufferSize:            1 * datasize.KB,
		MaxBufferAge:             time.Minute,
		MaxPendingAge:            5 * time.Minute,
		IdleTimeout:              15 * time.Minute,
		CompressionRatioEstimate: 1.0,
	}
	o := newTestOrchestrator(t, cfg, objStore, committer)

	keyA := base.SessionKey{Topic: "recordings", Partition: 0, TeamID: "team-1", SessionID: "sess-a"}
	keyB := base.SessionKey{Topic: "recordings", Partition: 1, TeamID: "team-2", SessionID: "sess-b"}

	// the second record of each session crosses the 1KB size trigger; the third
	// stays buffered until shutdown
	for i := int64(0); i < 3; i++ {
		acceptRecord(o, keyA, 100+i, 400)
		acceptRecord(o, keyB, 200+i, 400)
	}
	assert.Eventually(t, func() bool { return objStore.numUploads() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return committer.numCommits() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, o.NumSessions())

	o.DropPartition("recordings", 0)
	assert.Equal(t, 1, o.NumSessions())

	// a record for the dropped session recreates it
	acceptRecord(o, keyA, 110, 10)
	assert.Equal(t, 2, o.NumSessions())

	o.Shutdown()
	assert.Equal(t, 0, o.NumSessions())
	// shutdown destroys without a final flush
	assert.Equal(t, 2, objStore.numUploads())
}

func TestOrchestratorRetiresIdleSessions(t *testing.T) {
	oldSweep := defs.SessionSweepInterval
	defs.SessionSweepInterval = 50 * time.Millisecond
	defer func() { defs.SessionSweepInterval = oldSweep }()

	objStore := &fakeObjectStore{}
	committer := &fakeCommitter{}
	cfg := &Config{
		MaxBufferSize:            100 * datasize.KB,
		MaxBufferAge:             time.Minute,
		MaxPendingAge:            5 * time.Minute,
		IdleTimeout:              150 * time.Millisecond,
		CompressionRatioEstimate: 1.0,
	}
	o := newTestOrchestrator(t, cfg, objStore, committer)

	key := base.SessionKey{Topic: "recordings", Partition: 0, TeamID: "team-1", SessionID: "sess-idle"}
	acceptRecord(o, key, 1, 10)
	assert.Equal(t, 1, o.NumSessions())

	assert.Eventually(t, func() bool { return o.NumSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return o.metrics.retiredSessionsTotal.Get() == 1 }, time.Second, 10*time.Millisecond)

	o.Shutdown()
}
