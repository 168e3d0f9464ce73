package write_buffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type record struct {
	Id   string `json:"_id"`
	Name string `json:"name"`
}

type fakeBulkClient struct {
	client.TracelaneClient
	mu    sync.Mutex
	metas []client.MetaMap
	docs  []client.DocumentMap
	index string
	err   error
}

func (f *fakeBulkClient) BulkIndex(_ context.Context, metas []client.MetaMap, docs []client.DocumentMap, index *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.metas = append(f.metas, metas...)
	f.docs = append(f.docs, docs...)
	f.index = *index
	return nil
}

func (f *fakeBulkClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func TestDatabaseWriteBufferImpl(t *testing.T) {
	ctx := context.Background()

	t.Run("Flushes queued values with their ids", func(t *testing.T) {
		ac := &fakeBulkClient{}
		wb := NewDatabaseWriteBufferImpl[record](ac, "segment_index", zap.NewNop())
		wb.WriteToBuffer([]record{{Id: "1.2.3", Name: "a"}})
		require.NoError(t, wb.Flush(ctx))

		require.Len(t, ac.docs, 1)
		assert.Equal(t, "segment_index", ac.index)
		assert.Equal(t, client.MetaMap{"index": map[string]interface{}{"_id": "1.2.3"}}, ac.metas[0])
		assert.Equal(t, "a", ac.docs[0]["name"])
	})

	t.Run("Flushes by itself once the queue is full", func(t *testing.T) {
		ac := &fakeBulkClient{}
		wb := NewDatabaseWriteBufferImpl[record](ac, "segment_index", zap.NewNop())
		values := make([]record, WriteQueueSize+1)
		wb.WriteToBuffer(values)
		assert.Eventually(t, func() bool { return ac.count() == WriteQueueSize+1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("Returns the bulk error", func(t *testing.T) {
		ac := &fakeBulkClient{err: errors.New("rejected")}
		wb := NewDatabaseWriteBufferImpl[record](ac, "segment_index", zap.NewNop())
		wb.WriteToBuffer([]record{{Id: "x"}})
		assert.Error(t, wb.Flush(ctx))
	})

	t.Run("Flushes the remainder when stopped", func(t *testing.T) {
		ac := &fakeBulkClient{}
		wb := NewDatabaseWriteBufferImpl[record](ac, "segment_index", zap.NewNop())
		wb.WriteToBuffer([]record{{Id: "x"}})
		runCtx, cancel := context.WithCancel(ctx)
		cancel()
		require.NoError(t, wb.Run(runCtx, time.Hour))
		assert.Equal(t, 1, ac.count())
	})
}
