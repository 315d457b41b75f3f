package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/bufferstore"
	"github.com/relex/session-sink/defs"
)

const gzipCompressionLevel = gzip.BestSpeed

// FlushFailureHandler is invoked when the compress-and-upload step of a flush
// fails. The flush still deletes the local file and commits offsets afterwards:
// remote durability is best-effort by design, and this hook is the extension
// point for a stricter retry or dead-letter mode.
type FlushFailureHandler func(key base.SessionKey, buf *bufferstore.Buffer, err error)

// Manager owns one session stream's buffering and flush protocol: exactly one
// active buffer, at most one flushing buffer, and the pending chunk groups.
//
// All methods except the internal flush completion run on the owning session
// worker's goroutine; the mutex exists solely for the handoff between that
// goroutine and the flush goroutine (slot clearing, destruction).
type Manager struct {
	logger         logger.Logger
	key            base.SessionKey
	cfg            *Config
	remoteFolder   string
	store          *bufferstore.Store
	remote         base.ObjectStore
	committer      base.OffsetCommitter
	onFlushFailure FlushFailureHandler
	reassembler    *reassembler
	metrics        *sessionMetrics

	mu        sync.Mutex
	active    *bufferstore.Buffer
	flushing  *bufferstore.Buffer
	destroyed bool
	flushWG   sync.WaitGroup
}

// NewManager creates a Manager with a freshly allocated active buffer. A create
// failure is fatal for the session and surfaces to the caller.
func NewManager(parentLogger logger.Logger, key base.SessionKey, cfg *Config, remoteFolder string,
	store *bufferstore.Store, remote base.ObjectStore, committer base.OffsetCommitter,
	onFlushFailure FlushFailureHandler, metrics *sessionMetrics) (*Manager, error) {

	mlogger := parentLogger.WithField(defs.LabelComponent, "SessionManager")
	active, err := store.Create(time.Now())
	if err != nil {
		return nil, err
	}

	man := &Manager{
		logger:         mlogger,
		key:            key,
		cfg:            cfg,
		remoteFolder:   remoteFolder,
		store:          store,
		remote:         remote,
		committer:      committer,
		onFlushFailure: onFlushFailure,
		reassembler:    newReassembler(mlogger, metrics),
		metrics:        metrics,
		active:         active,
	}
	if man.onFlushFailure == nil {
		man.onFlushFailure = man.logFlushFailure
	}
	return man, nil
}

// Add routes one record into the active buffer, through reassembly first if it is
// a fragment, then evaluates the size trigger. Errors are local buffer failures;
// the caller decides the record's fate.
func (man *Manager) Add(rec base.Record) error {
	man.metrics.inputRecordsTotal.Inc()

	if rec.IsFragment() {
		assembled, done := man.reassembler.Ingest(rec, time.Now())
		if !done {
			return nil
		}
		rec = assembled
	}

	buf := man.activeBuffer()
	if buf == nil {
		return fmt.Errorf("session %s is destroyed", man.key)
	}
	if err := man.store.Append(buf, rec); err != nil {
		return err
	}

	if ExceedsSizeLimit(buf.ByteSize, man.cfg.MaxBufferSize, man.cfg.CompressionRatioEstimate) {
		man.Flush()
	}
	return nil
}

// OnTick evaluates the age trigger and evicts stale chunk groups; called
// periodically by the session worker so an idle session still drains
func (man *Manager) OnTick(now time.Time) {
	man.reassembler.EvictStale(man.cfg.MaxPendingAge, now)

	buf := man.activeBuffer()
	if buf == nil || buf.RecordCount == 0 {
		return
	}
	if ExceedsAgeLimit(buf.OldestTimestamp, man.cfg.MaxBufferAge, now) {
		man.Flush()
	}
}

// Flush starts the flush protocol: swap the active buffer into the flushing slot,
// allocate a new active buffer, then compress and upload on a separate goroutine
// so ingestion is never blocked. A second call while a flush is outstanding is a
// logged no-op, not an error.
func (man *Manager) Flush() {
	man.mu.Lock()
	if man.destroyed {
		man.mu.Unlock()
		return
	}
	if man.flushing != nil {
		man.metrics.flushNoopsTotal.Inc()
		man.mu.Unlock()
		man.logger.Debugf("skip flush, one already in progress")
		return
	}
	if man.active.RecordCount == 0 {
		man.mu.Unlock()
		return
	}
	newActive, err := man.store.Create(time.Now())
	if err != nil {
		man.mu.Unlock()
		man.logger.Errorf("error allocating new buffer, flush aborted: %s", err.Error())
		return
	}
	buf := man.active
	man.flushing = buf
	man.active = newActive
	man.flushWG.Add(1)
	man.mu.Unlock()

	go man.performFlush(buf)
}

// Destroy deletes both the active and, if present, the flushing buffer's files.
// No final flush is attempted: unflushed records are discarded. Idempotent, and
// safe against an in-flight flush thanks to idempotent removal.
func (man *Manager) Destroy() {
	man.mu.Lock()
	if man.destroyed {
		man.mu.Unlock()
		return
	}
	man.destroyed = true
	active := man.active
	flushing := man.flushing
	man.active = nil
	man.mu.Unlock()

	if active != nil {
		if err := man.store.Remove(active); err != nil {
			man.logger.Errorf("error removing active buffer on destroy: %s", err.Error())
		}
	}
	if flushing != nil {
		if err := man.store.Remove(flushing); err != nil {
			man.logger.Errorf("error removing flushing buffer on destroy: %s", err.Error())
		}
	}
	man.logger.Debugf("destroyed")
}

// WaitFlushes waits for in-flight flush uploads to finish, for graceful shutdown
func (man *Manager) WaitFlushes(timeout time.Duration) bool {
	return channels.NewWaitGroupAwaitable(&man.flushWG).Wait(timeout)
}

// NumPendingChunkGroups returns the count of incomplete chunk groups
func (man *Manager) NumPendingChunkGroups() int {
	return man.reassembler.NumPendingGroups()
}

func (man *Manager) activeBuffer() *bufferstore.Buffer {
	man.mu.Lock()
	defer man.mu.Unlock()
	return man.active
}

// performFlush runs the suspended part of the protocol on its own goroutine. In
// all outcomes the local file is deleted, offsets are committed exactly once, and
// the flushing slot is cleared last.
func (man *Manager) performFlush(buf *bufferstore.Buffer) {
	defer man.flushWG.Done()
	defer func() {
		man.mu.Lock()
		man.flushing = nil
		man.mu.Unlock()
	}()

	if cerr := buf.CloseWrite(); cerr != nil {
		man.logger.Warnf("error closing buffer for flush: %s", cerr.Error())
	}

	key := man.remoteKey(buf)
	if uploadErr := man.uploadCompressed(key, buf); uploadErr != nil {
		man.metrics.flushesFailure.Inc()
		man.onFlushFailure(man.key, buf, uploadErr)
	} else {
		man.metrics.flushesSuccess.Inc()
		man.metrics.flushedBytesTotal.Add(uint64(buf.ByteSize))
		man.logger.Debugf("flushed buffer %s to %s", buf, key)
	}

	if rerr := man.store.Remove(buf); rerr != nil {
		man.logger.Errorf("error removing flushed buffer: %s", rerr.Error())
	}
	man.committer.CommitOffsets(man.key.Topic, man.key.Partition, buf.Offsets())
}

func (man *Manager) remoteKey(buf *bufferstore.Buffer) string {
	return fmt.Sprintf("%s/team_id/%s/session_id/%s/data/%d",
		man.remoteFolder, man.key.TeamID, man.key.SessionID, buf.OldestTimestamp.UnixMilli())
}

// uploadCompressed streams the buffer's file through gzip directly into the
// remote upload, without materializing the compressed body
func (man *Manager) uploadCompressed(key string, buf *bufferstore.Buffer) error {
	file, err := os.Open(buf.FilePath)
	if err != nil {
		return fmt.Errorf("open buffer file: %w", err)
	}
	defer file.Close()

	bodyReader, bodyWriter := io.Pipe()
	go func() {
		gzWriter, _ := gzip.NewWriterLevel(bodyWriter, gzipCompressionLevel)
		if _, cerr := io.Copy(gzWriter, file); cerr != nil {
			bodyWriter.CloseWithError(cerr)
			return
		}
		if cerr := gzWriter.Close(); cerr != nil {
			bodyWriter.CloseWithError(cerr)
			return
		}
		bodyWriter.Close()
	}()

	if uerr := man.remote.Upload(context.Background(), key, bodyReader); uerr != nil {
		bodyReader.CloseWithError(uerr) // release the compressor goroutine if upload aborted mid-stream
		return uerr
	}
	return nil
}

func (man *Manager) logFlushFailure(_ base.SessionKey, buf *bufferstore.Buffer, err error) {
	man.logger.Errorf("error uploading buffer %s, offsets will still be committed: %s", buf, err.Error())
}
