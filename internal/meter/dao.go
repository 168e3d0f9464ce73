package meter

import "context"

// MetricsDAO is the storage behind the meter. Rows are keyed by Row.ID and stored as the
// encoded column map.
type MetricsDAO interface {
	// ReadExisting returns the stored column maps of the ids that exist.
	ReadExisting(ctx context.Context, ids []string) (map[string]map[string]interface{}, error)
	Persist(ctx context.Context, rows []*Row) error
}

// Publisher receives every row after it was persisted.
type Publisher interface {
	Publish(topic string, row PersistedRow) error
}

const MetricsPersistedTopic = "metrics_persisted"
