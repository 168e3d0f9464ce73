package analysis

import (
	"context"

	"github.com/Avi18971911/Tracelane/internal/meter"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
)

// ServiceInstanceListener counts one call per segment for the instance that produced it.
type ServiceInstanceListener struct {
	listener.NopListener
	acceptor MetricsAcceptor
	sample   *sample
}

func NewServiceInstanceListenerFactory(acceptor MetricsAcceptor) listener.Factory {
	return listener.FactoryFunc(func() listener.SpanListener {
		return &ServiceInstanceListener{acceptor: acceptor}
	})
}

func (l *ServiceInstanceListener) Name() string { return "service_instance" }

func (l *ServiceInstanceListener) Points() listener.Point { return listener.First }

func (l *ServiceInstanceListener) ParseFirst(_ context.Context, span *model.Span, info *model.SegmentCoreInfo) error {
	if info.ServiceInstanceID == 0 {
		return nil
	}
	l.sample = &sample{
		meter.ServiceInstanceEntity(info.ServiceID, info.ServiceInstanceID),
		ServiceInstanceCpm,
		1,
		span.StartTime,
	}
	return nil
}

func (l *ServiceInstanceListener) Build(ctx context.Context) error {
	if l.sample == nil {
		return nil
	}
	return emit(ctx, l.acceptor, []sample{*l.sample})
}
