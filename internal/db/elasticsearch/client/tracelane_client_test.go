package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubClient serves a fixed inventory of documents the way Elasticsearch does.
func newStubClient(t *testing.T) *TracelaneClientImpl {
	docs := map[string]map[string]interface{}{
		"a": {"entity_id": 1},
		"b": {"entity_id": 2},
		"big": {"count": int64(9007199254740993)},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/inventory/_create/"):
			id := strings.TrimPrefix(r.URL.Path, "/inventory/_create/")
			if _, ok := docs[id]; ok {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception"},"status":409}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/inventory/_doc/"):
			id := strings.TrimPrefix(r.URL.Path, "/inventory/_doc/")
			doc, ok := docs[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"_index":"inventory","_id":"` + id + `","found":false}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"_index": "inventory", "_id": id, "found": true, "_source": doc})
		case strings.HasSuffix(r.URL.Path, "/_mget"):
			var body struct {
				Ids []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			var found []map[string]interface{}
			for _, id := range body.Ids {
				doc, ok := docs[id]
				found = append(found, map[string]interface{}{"_index": "inventory", "_id": id, "found": ok, "_source": doc})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"docs": found})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewTracelaneClientImpl(es, Async)
}

func TestTracelaneClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Create reports an existing document as ErrDocumentExists", func(t *testing.T) {
		ac := newStubClient(t)
		err := ac.Create(ctx, "a", DocumentMap{"entity_id": 3}, "inventory")
		assert.ErrorIs(t, err, ErrDocumentExists)
		assert.NoError(t, ac.Create(ctx, "c", DocumentMap{"entity_id": 3}, "inventory"))
	})

	t.Run("Get distinguishes missing documents from errors", func(t *testing.T) {
		ac := newStubClient(t)
		doc, found, err := ac.Get(ctx, "b", "inventory")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, json.Number("2"), doc["entity_id"])

		_, found, err = ac.Get(ctx, "missing", "inventory")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("MultiGet keeps large integers exact", func(t *testing.T) {
		ac := newStubClient(t)
		docs, err := ac.MultiGet(ctx, []string{"big"}, "inventory")
		require.NoError(t, err)
		assert.Equal(t, json.Number("9007199254740993"), docs["big"]["count"])
	})

	t.Run("MultiGet leaves missing documents out of the result", func(t *testing.T) {
		ac := newStubClient(t)
		docs, err := ac.MultiGet(ctx, []string{"a", "missing", "b"}, "inventory")
		require.NoError(t, err)
		assert.Len(t, docs, 2)
		assert.Equal(t, json.Number("1"), docs["a"]["entity_id"])
	})
}
