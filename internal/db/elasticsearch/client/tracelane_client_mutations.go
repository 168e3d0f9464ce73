package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

func (a *TracelaneClientImpl) BulkIndex(
	ctx context.Context,
	metaInfo []MetaMap,
	data []DocumentMap,
	index *string,
) error {
	var buf bytes.Buffer
	for i, d := range data {
		var meta MetaMap
		if metaInfo != nil && i < len(metaInfo) {
			meta = metaInfo[i]
		} else {
			// empty meta for bulk index
			meta = MetaMap{"index": map[string]interface{}{}}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("error marshaling meta to bulk index: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		dataJSON, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("error marshaling data to bulk index: %w", err)
		}
		buf.Write(dataJSON)
		buf.WriteByte('\n')
	}
	var res *esapi.Response
	var err error
	if index != nil {
		res, err = a.es.Bulk(
			bytes.NewReader(buf.Bytes()),
			a.es.Bulk.WithIndex(*index),
			a.es.Bulk.WithContext(ctx),
			a.es.Bulk.WithRefresh(a.refreshRate),
		)
	} else {
		res, err = a.es.Bulk(
			bytes.NewReader(buf.Bytes()),
			a.es.Bulk.WithContext(ctx),
			a.es.Bulk.WithRefresh(a.refreshRate),
		)
	}
	if err != nil {
		return fmt.Errorf("error bulk indexing: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}
	return checkBulkItems(res)
}

func (a *TracelaneClientImpl) Create(
	ctx context.Context,
	id string,
	data DocumentMap,
	index string,
) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling document to create: %w", err)
	}
	res, err := a.es.Create(
		index,
		id,
		bytes.NewReader(dataJSON),
		a.es.Create.WithContext(ctx),
		a.es.Create.WithRefresh(a.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("failed to create document in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusConflict {
		return ErrDocumentExists
	}
	if res.IsError() {
		return fmt.Errorf("create error: %s", res.String())
	}
	return nil
}

// checkBulkItems surfaces per-item failures, which Elasticsearch reports with a 200 status.
func checkBulkItems(res *esapi.Response) error {
	var bulkResponse bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResponse); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !bulkResponse.Errors {
		return nil
	}
	for _, item := range bulkResponse.Items {
		for action, result := range item {
			if result.Error != nil {
				return fmt.Errorf(
					"bulk %s failed for document %s: %s",
					action,
					result.ID,
					result.Error.Reason,
				)
			}
		}
	}
	return fmt.Errorf("bulk request reported errors")
}

type bulkResponse struct {
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkItemResponse `json:"items"`
}

type bulkItemResponse struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}
