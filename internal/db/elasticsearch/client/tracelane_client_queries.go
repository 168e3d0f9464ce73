package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/model"
)

func (a *TracelaneClientImpl) Get(
	ctx context.Context,
	id string,
	index string,
) (DocumentMap, bool, error) {
	res, err := a.es.Get(
		index,
		id,
		a.es.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("failed to get document: %s", res.String())
	}

	var getResponse model.GetResponse
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&getResponse); err != nil {
		return nil, false, fmt.Errorf("failed to decode response body: %w", err)
	}
	if !getResponse.Found {
		return nil, false, nil
	}
	return getResponse.Source, true, nil
}

func (a *TracelaneClientImpl) MultiGet(
	ctx context.Context,
	ids []string,
	index string,
) (map[string]DocumentMap, error) {
	result := make(map[string]DocumentMap, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	body, err := json.Marshal(map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("error marshaling multi get ids: %w", err)
	}

	res, err := a.es.Mget(
		bytes.NewReader(body),
		a.es.Mget.WithIndex(index),
		a.es.Mget.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to multi get documents: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return result, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to multi get documents: %s", res.String())
	}

	var mgetResponse model.MultiGetResponse
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&mgetResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	for _, doc := range mgetResponse.Docs {
		if doc.Found {
			result[doc.ID] = doc.Source
		}
	}
	return result, nil
}
