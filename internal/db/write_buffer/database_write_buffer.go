package write_buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/client"
	"go.uber.org/zap"
)

const WriteQueueSize = 30
const flushTimeOut = 10 * time.Second

type DatabaseWriteBuffer[ValueType any] interface {
	WriteToBuffer(value []ValueType)
	// Flush writes whatever is queued, regardless of the queue size.
	Flush(ctx context.Context) error
	// Run flushes every interval until ctx is done, then flushes once more.
	Run(ctx context.Context, interval time.Duration) error
}

type DatabaseWriteBufferImpl[ValueType any] struct {
	writeQueue  []ValueType
	ac          client.TracelaneClient
	esIndexName string
	logger      *zap.Logger
	mu          sync.Mutex
	flushMu     sync.Mutex
}

func NewDatabaseWriteBufferImpl[ValueType any](
	ac client.TracelaneClient,
	esIndexName string,
	logger *zap.Logger,
) *DatabaseWriteBufferImpl[ValueType] {
	return &DatabaseWriteBufferImpl[ValueType]{
		writeQueue:  []ValueType{},
		ac:          ac,
		esIndexName: esIndexName,
		logger:      logger,
	}
}

func (wbc *DatabaseWriteBufferImpl[ValueType]) WriteToBuffer(
	value []ValueType,
) {
	wbc.mu.Lock()
	wbc.writeQueue = append(wbc.writeQueue, value...)
	full := len(wbc.writeQueue) > WriteQueueSize
	wbc.mu.Unlock()
	if full {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeOut)
			defer cancel()
			if err := wbc.Flush(ctx); err != nil {
				wbc.logger.Error("Failed to flush to Elasticsearch", zap.Error(err))
			}
		}()
	}
}

func (wbc *DatabaseWriteBufferImpl[ValueType]) Flush(ctx context.Context) error {
	wbc.flushMu.Lock()
	defer wbc.flushMu.Unlock()

	wbc.mu.Lock()
	queue := wbc.writeQueue
	wbc.writeQueue = []ValueType{}
	wbc.mu.Unlock()
	if len(queue) == 0 {
		return nil
	}

	metaMap, dataMap, err := client.ToMetaAndDataMap(queue)
	if err != nil {
		return fmt.Errorf("error converting write queue to meta and data map: %w", err)
	}
	err = wbc.ac.BulkIndex(
		ctx,
		metaMap,
		dataMap,
		&wbc.esIndexName,
	)
	if err != nil {
		return fmt.Errorf("error bulk indexing %d documents to Elasticsearch: %w", len(queue), err)
	}
	return nil
}

func (wbc *DatabaseWriteBufferImpl[ValueType]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeOut)
			defer cancel()
			return wbc.Flush(flushCtx)
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(ctx, flushTimeOut)
			if err := wbc.Flush(flushCtx); err != nil {
				wbc.logger.Error("Failed to flush to Elasticsearch", zap.Error(err))
			}
			cancel()
		}
	}
}
