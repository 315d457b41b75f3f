package bufferstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/defs"
)

// Store owns the on-disk buffer epochs of one session, all inside a dedicated
// subdir labelled with the session key. It performs no locking: the swap protocol
// in the session manager guarantees appends never interleave with a flush of the
// same buffer.
type Store struct {
	logger  logger.Logger
	dirPath string
	metrics *Metrics
}

// Metrics holds buffer store counters shared by the stores of all sessions
type Metrics struct {
	createdBuffersTotal  promext.RWCounter
	removedBuffersTotal  promext.RWCounter
	appendedRecordsTotal promext.RWCounter
	appendedBytesTotal   promext.RWCounter
	ioErrorsTotal        promext.RWCounter
	bufferedBytes        promext.RWGauge
}

// NewMetrics creates the shared buffer store counters
func NewMetrics(metricCreator promreg.MetricCreator) *Metrics {
	storeMetricCreator := metricCreator.AddOrGetPrefix("", []string{"storage"}, []string{"bufferStore"})
	metrics := &Metrics{
		createdBuffersTotal:  storeMetricCreator.AddOrGetCounter("created_buffers_total", "Numbers of created buffer epochs", nil, nil),
		removedBuffersTotal:  storeMetricCreator.AddOrGetCounter("removed_buffers_total", "Numbers of removed buffer files", nil, nil),
		appendedRecordsTotal: storeMetricCreator.AddOrGetCounter("appended_records_total", "Numbers of records appended to local buffers", nil, nil),
		appendedBytesTotal:   storeMetricCreator.AddOrGetCounter("appended_bytes_total", "Bytes of serialized records appended to local buffers", nil, nil),
		ioErrorsTotal:        storeMetricCreator.AddOrGetCounter("io_errors_total", "Numbers of I/O errors on local buffer files", nil, nil),
		bufferedBytes:        storeMetricCreator.AddOrGetGauge("buffered_bytes", "Bytes currently held in local buffer files", nil, nil),
	}
	metrics.bufferedBytes.Set(0)
	return metrics
}

// NewStore creates a Store for one session under the given root path
func NewStore(parentLogger logger.Logger, rootPath string, key base.SessionKey, metrics *Metrics) *Store {
	slogger := parentLogger.WithField(defs.LabelPart, "BufferStore")
	return &Store{
		logger:  slogger,
		dirPath: makeSessionDir(slogger, rootPath, key),
		metrics: metrics,
	}
}

// DirPath returns the session's buffer directory
func (store *Store) DirPath() string {
	return store.dirPath
}

// Create allocates a new empty buffer epoch with a freshly created local file.
// OldestTimestamp starts at now and only moves backwards as records are appended.
func (store *Store) Create(now time.Time) (*Buffer, error) {
	id := uuid.NewString()
	path := filepath.Join(store.dirPath, id)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		store.metrics.ioErrorsTotal.Inc()
		return nil, &StorageError{Op: "create", Path: path, Err: err}
	}
	store.metrics.createdBuffersTotal.Inc()
	store.logger.Debugf("created buffer id=%s", id)
	return &Buffer{
		ID:              id,
		FilePath:        path,
		OldestTimestamp: now,
		offsets:         make(map[int64]struct{}, 256),
		file:            file,
	}, nil
}

// Append serializes the record as one line, appends it in a single write, and
// folds the record's counts, offsets and timestamp into the buffer
func (store *Store) Append(buf *Buffer, rec base.Record) error {
	line, err := base.EncodeBufferLine(rec)
	if err != nil {
		return err
	}
	if buf.file == nil {
		return &StorageError{Op: "append", Path: buf.FilePath, Err: os.ErrClosed}
	}
	if _, werr := buf.file.Write(line); werr != nil {
		store.metrics.ioErrorsTotal.Inc()
		return &StorageError{Op: "append", Path: buf.FilePath, Err: werr}
	}
	buf.RecordCount++
	buf.ByteSize += int64(len(line))
	for _, offset := range rec.Offsets {
		buf.offsets[offset] = struct{}{}
	}
	if rec.Timestamp.Before(buf.OldestTimestamp) {
		buf.OldestTimestamp = rec.Timestamp
	}
	store.metrics.appendedRecordsTotal.Inc()
	store.metrics.appendedBytesTotal.Add(uint64(len(line)))
	store.metrics.bufferedBytes.Add(int64(len(line)))
	return nil
}

// Remove deletes the buffer's file. An already-absent file is success, so repeated
// cleanup attempts stay idempotent.
func (store *Store) Remove(buf *Buffer) error {
	if cerr := buf.CloseWrite(); cerr != nil {
		store.logger.Warnf("error closing buffer before removal: %s", cerr.Error())
	}
	if err := os.Remove(buf.FilePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		store.metrics.ioErrorsTotal.Inc()
		return &StorageError{Op: "remove", Path: buf.FilePath, Err: err}
	}
	store.metrics.removedBuffersTotal.Inc()
	store.metrics.bufferedBytes.Sub(buf.ByteSize)
	return nil
}
