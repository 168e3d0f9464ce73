package elasticsearch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/bootstrapper"
	"github.com/elastic/go-elasticsearch/v8"
)

func requireElasticsearch(t *testing.T) {
	t.Helper()
	if es == nil {
		t.Skipf("%s is not set", addressEnv)
	}
}

func deleteAllDocuments(es *elasticsearch.Client) error {
	indexes := []string{
		bootstrapper.SegmentIndexName,
		bootstrapper.MetricsIndexName,
		bootstrapper.InventoryIndexName,
	}
	queryJSON, _ := json.Marshal(getAllQuery())
	res, err := es.DeleteByQuery(indexes, bytes.NewReader(queryJSON), es.DeleteByQuery.WithRefresh(true))
	if err != nil {
		return fmt.Errorf("failed to delete documents by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to delete documents in index %s", res.String())
	}
	return nil
}

func getAllQuery() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}
}
