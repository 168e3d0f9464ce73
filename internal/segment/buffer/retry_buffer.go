package buffer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	fileName   = "segment_buffer.db"
	boltBucket = "segments"
)

// Record is what the buffer stores per segment, CBOR encoded.
type Record struct {
	SegmentID  string `cbor:"segment_id"`
	Envelope   []byte `cbor:"envelope"`
	EnqueuedAt int64  `cbor:"enqueued_at"`
}

// Callback receives a buffered envelope. Returning true removes it from the buffer, false keeps
// it for the next pass.
type Callback func(ctx context.Context, raw []byte) bool

type Config struct {
	Directory    string
	QueueSize    int
	ReadInterval time.Duration
	ReadBatch    int
}

// RetryBuffer is a durable FIFO of segments that could not be committed yet. Enqueue hands the
// segment to a single writer goroutine so callers never wait on disk.
type RetryBuffer struct {
	db        *bolt.DB
	cfg       Config
	writes    chan Record
	mu        sync.RWMutex
	closed    bool
	writerEnd chan struct{}
	pending   atomic.Int64
	length    atomic.Int64
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

var (
	ErrBufferFull   = errors.New("retry buffer write queue is full")
	ErrBufferClosed = errors.New("retry buffer is closed")
)

// Open opens (or creates) the buffer file under cfg.Directory and starts the writer goroutine.
// Entries written before a restart are kept.
func Open(cfg Config, metrics *telemetry.Metrics, logger *zap.Logger) (*RetryBuffer, error) {
	if err := os.MkdirAll(cfg.Directory, 0700); err != nil {
		return nil, fmt.Errorf("failed to create buffer dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(cfg.Directory, fileName), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open buffer file: %w", err)
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(boltBucket)); err != nil {
			return fmt.Errorf("unable to create %s bucket: %w", boltBucket, err)
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.ReadBatch <= 0 {
		cfg.ReadBatch = 100
	}
	if cfg.ReadInterval <= 0 {
		cfg.ReadInterval = 10 * time.Second
	}

	rb := &RetryBuffer{
		db:        db,
		cfg:       cfg,
		writes:    make(chan Record, cfg.QueueSize),
		writerEnd: make(chan struct{}),
		metrics:   metrics,
		logger:    logger,
	}
	n, err := rb.countEntries()
	if err != nil {
		db.Close()
		return nil, err
	}
	rb.length.Store(int64(n))
	rb.refreshLength()
	go rb.runWriter()
	return rb, nil
}

func (rb *RetryBuffer) Enqueue(segmentID string, raw []byte) error {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.closed {
		return ErrBufferClosed
	}
	record := Record{
		SegmentID:  segmentID,
		Envelope:   raw,
		EnqueuedAt: time.Now().UnixMilli(),
	}
	rb.pending.Add(1)
	select {
	case rb.writes <- record:
		return nil
	default:
		rb.pending.Add(-1)
		return ErrBufferFull
	}
}

func (rb *RetryBuffer) runWriter() {
	defer close(rb.writerEnd)
	for record := range rb.writes {
		batch := []Record{record}
	drain:
		for len(batch) < rb.cfg.ReadBatch {
			select {
			case next, ok := <-rb.writes:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		if err := rb.store(batch); err == nil {
			rb.length.Add(int64(len(batch)))
		} else {
			rb.metrics.BufferWriteErrors.Add(float64(len(batch)))
			rb.logger.Error(
				"Failed to write segments to the retry buffer, dropping them",
				zap.Int("count", len(batch)),
				zap.Error(err),
			)
		}
		rb.pending.Add(-int64(len(batch)))
		rb.refreshLength()
	}
}

func (rb *RetryBuffer) store(records []Record) error {
	return rb.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		for _, record := range records {
			value, err := cbor.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to encode buffer record %s: %w", record.SegmentID, err)
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate buffer key: %w", err)
			}
			if err = bucket.Put(sequenceKey(seq), value); err != nil {
				return fmt.Errorf("failed to store buffer record %s: %w", record.SegmentID, err)
			}
		}
		return nil
	})
}

// Run drains the buffer every ReadInterval until ctx is done.
func (rb *RetryBuffer) Run(ctx context.Context, callback Callback) error {
	ticker := time.NewTicker(rb.cfg.ReadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := rb.Drain(ctx, callback); err != nil {
				rb.logger.Error("Failed to drain the retry buffer", zap.Error(err))
			}
		}
	}
}

// Drain makes one pass over the buffer in append order and returns how many entries were
// removed. Callbacks run outside of any bolt transaction.
func (rb *RetryBuffer) Drain(ctx context.Context, callback Callback) (int, error) {
	removed := 0
	var after []byte
	for {
		keys, records, err := rb.readBatch(after)
		if err != nil {
			return removed, err
		}
		if len(keys) == 0 {
			break
		}
		after = keys[len(keys)-1]

		var done [][]byte
		for i, record := range records {
			if ctx.Err() != nil {
				break
			}
			if record == nil || callback(ctx, record.Envelope) {
				done = append(done, keys[i])
			}
		}
		if err = rb.delete(done); err != nil {
			return removed, err
		}
		removed += len(done)
		if ctx.Err() != nil || len(keys) < rb.cfg.ReadBatch {
			break
		}
	}
	rb.refreshLength()
	return removed, nil
}

// readBatch copies up to ReadBatch entries with keys greater than after. Records that cannot be
// decoded are returned as nil so the caller removes them.
func (rb *RetryBuffer) readBatch(after []byte) ([][]byte, []*Record, error) {
	var keys [][]byte
	var records []*Record
	err := rb.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(boltBucket)).Cursor()
		var k, v []byte
		if after == nil {
			k, v = cursor.First()
		} else {
			k, v = cursor.Seek(after)
			if k != nil && string(k) == string(after) {
				k, v = cursor.Next()
			}
		}
		for ; k != nil && len(keys) < rb.cfg.ReadBatch; k, v = cursor.Next() {
			keys = append(keys, append([]byte(nil), k...))
			var record Record
			if err := cbor.Unmarshal(v, &record); err != nil {
				rb.logger.Error("Discarding unreadable buffer record", zap.Error(err))
				records = append(records, nil)
				continue
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read the retry buffer: %w", err)
	}
	return keys, records, nil
}

func (rb *RetryBuffer) delete(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	err := rb.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete from the retry buffer: %w", err)
	}
	rb.length.Add(-int64(len(keys)))
	return nil
}

// Len is the number of buffered segments, tracked in memory since Open.
func (rb *RetryBuffer) Len() (int, error) {
	return int(rb.length.Load()), nil
}

// countEntries walks the whole bucket, so it only runs once in Open.
func (rb *RetryBuffer) countEntries() (int, error) {
	var n int
	err := rb.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(boltBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count retry buffer entries: %w", err)
	}
	return n, nil
}

func (rb *RetryBuffer) refreshLength() {
	rb.metrics.BufferLength.Set(float64(rb.length.Load()))
}

// Close stops accepting segments, waits for queued writes to reach disk and closes the file.
func (rb *RetryBuffer) Close() error {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return nil
	}
	rb.closed = true
	close(rb.writes)
	rb.mu.Unlock()

	<-rb.writerEnd
	return rb.db.Close()
}

// Flush blocks until every record queued so far has been written.
func (rb *RetryBuffer) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for rb.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
