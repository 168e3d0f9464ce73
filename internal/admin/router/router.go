package router

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BufferStatus reports how many segments wait for replay.
type BufferStatus interface {
	Len() (int, error)
}

type healthResponse struct {
	Status         string `json:"status"`
	BufferedLength int    `json:"buffered_segments"`
}

func CreateRouter(
	gatherer prometheus.Gatherer,
	buffer BufferStatus,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	).Methods("GET")

	r.Handle(
		"/healthz", healthHandler(buffer, logger),
	).Methods("GET")

	return r
}

func healthHandler(buffer BufferStatus, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := buffer.Len()
		if err != nil {
			logger.Error("Failed to read retry buffer length", zap.Error(err))
			http.Error(w, "retry buffer unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", BufferedLength: n}); err != nil {
			logger.Error("Failed to encode health response", zap.Error(err))
		}
	}
}
