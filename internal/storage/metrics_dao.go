package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/bootstrapper"
	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/client"
	"github.com/Avi18971911/Tracelane/internal/meter"
	"go.uber.org/zap"
)

type MemoryMetricsDAO struct {
	mu   sync.RWMutex
	docs map[string]map[string]interface{}
}

func NewMemoryMetricsDAO() *MemoryMetricsDAO {
	return &MemoryMetricsDAO{docs: make(map[string]map[string]interface{})}
}

func (m *MemoryMetricsDAO) ReadExisting(_ context.Context, ids []string) (map[string]map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := make(map[string]map[string]interface{})
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			found[id] = copyColumns(doc)
		}
	}
	return found, nil
}

func (m *MemoryMetricsDAO) Persist(_ context.Context, rows []*meter.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.docs[row.ID()] = row.Encode()
	}
	return nil
}

// Get returns the stored columns of one row, for inspection.
func (m *MemoryMetricsDAO) Get(id string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, false
	}
	return copyColumns(doc), true
}

func copyColumns(doc map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		c[k] = v
	}
	return c
}

type ElasticsearchMetricsDAO struct {
	ac     client.TracelaneClient
	logger *zap.Logger
}

func NewElasticsearchMetricsDAO(ac client.TracelaneClient, logger *zap.Logger) *ElasticsearchMetricsDAO {
	return &ElasticsearchMetricsDAO{ac: ac, logger: logger}
}

func (e *ElasticsearchMetricsDAO) ReadExisting(ctx context.Context, ids []string) (map[string]map[string]interface{}, error) {
	docs, err := e.ac.MultiGet(ctx, ids, bootstrapper.MetricsIndexName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %d metric rows: %w", len(ids), err)
	}
	found := make(map[string]map[string]interface{}, len(docs))
	for id, doc := range docs {
		columns, ok := doc["columns"].(map[string]interface{})
		if !ok {
			e.logger.Warn("Stored metric row has no columns", zap.String("id", id))
			continue
		}
		found[id] = columns
	}
	return found, nil
}

func (e *ElasticsearchMetricsDAO) Persist(ctx context.Context, rows []*meter.Row) error {
	if len(rows) == 0 {
		return nil
	}
	metas := make([]client.MetaMap, len(rows))
	docs := make([]client.DocumentMap, len(rows))
	for i, row := range rows {
		metas[i] = client.MetaMap{"index": map[string]interface{}{"_id": row.ID()}}
		docs[i] = client.DocumentMap{
			"metric_name":  row.MetricName,
			"entity_id":    row.EntityID,
			"downsampling": string(row.Downsampling),
			"time_bucket":  row.TimeBucket,
			"columns":      row.Encode(),
		}
	}
	index := bootstrapper.MetricsIndexName
	if err := e.ac.BulkIndex(ctx, metas, docs, &index); err != nil {
		return fmt.Errorf("failed to persist %d metric rows: %w", len(rows), err)
	}
	return nil
}
