package client

import (
	"context"
	"errors"

	"github.com/elastic/go-elasticsearch/v8"
)

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Async Take no refresh related actions. The changes made by this request will be made visible at some point after the request returns.
	Async RefreshRate = "false"
)

type TracelaneClient interface {
	// BulkIndex indexes (inserts or overwrites) multiple documents in the same index
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-bulk.html
	BulkIndex(ctx context.Context, metaInfo []MetaMap, documentInfo []DocumentMap, index *string) error
	// Create inserts a document only if no document with the same id exists, ErrDocumentExists otherwise
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-index_.html#docs-index-api-op_type
	Create(ctx context.Context, id string, documentInfo DocumentMap, index string) error
	// Get fetches a single document by id. The boolean is false when the document does not exist.
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-get.html
	Get(ctx context.Context, id string, index string) (DocumentMap, bool, error)
	// MultiGet fetches many documents by id. Missing documents are absent from the result map.
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-multi-get.html
	MultiGet(ctx context.Context, ids []string, index string) (map[string]DocumentMap, error)
}

type TracelaneClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewTracelaneClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *TracelaneClientImpl {
	return &TracelaneClientImpl{es: es, refreshRate: string(refreshRate)}
}

var (
	ErrDocumentExists = errors.New("document with the same id already exists")
)
