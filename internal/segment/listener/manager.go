package listener

import (
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"go.uber.org/zap"
)

// Manager holds the listener factories. The set is fixed at construction.
type Manager struct {
	factories []Factory
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

func NewManager(metrics *telemetry.Metrics, logger *zap.Logger, factories ...Factory) *Manager {
	return &Manager{
		factories: factories,
		metrics:   metrics,
		logger:    logger,
	}
}

// NewDispatcher creates one fresh listener per factory.
func (m *Manager) NewDispatcher() *Dispatcher {
	listeners := make([]SpanListener, 0, len(m.factories))
	for _, factory := range m.factories {
		listeners = append(listeners, factory.Create())
	}
	return &Dispatcher{
		listeners: listeners,
		metrics:   m.metrics,
		logger:    m.logger,
	}
}
