package analysis

import (
	"context"

	"github.com/Avi18971911/Tracelane/internal/meter"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
)

// ServiceRelationListener builds topology edges. Entry spans with cross process references give
// a server side edge parent service -> this service. Exit spans give a client side edge this
// service -> peer network address, since the peer's service is not known from the caller.
type ServiceRelationListener struct {
	listener.NopListener
	acceptor MetricsAcceptor
	samples  []sample
}

func NewServiceRelationListenerFactory(acceptor MetricsAcceptor) listener.Factory {
	return listener.FactoryFunc(func() listener.SpanListener {
		return &ServiceRelationListener{acceptor: acceptor}
	})
}

func (l *ServiceRelationListener) Name() string { return "service_relation" }

func (l *ServiceRelationListener) Points() listener.Point { return listener.Entry | listener.Exit }

func (l *ServiceRelationListener) ParseEntry(_ context.Context, span *model.Span, info *model.SegmentCoreInfo) error {
	for _, ref := range span.Refs {
		if ref.RefType != model.CrossProcess || ref.ParentServiceID == 0 {
			continue
		}
		l.samples = append(l.samples, sample{
			meter.ServiceRelationEntity(ref.ParentServiceID, info.ServiceID),
			ServiceRelationServerCpm,
			1,
			span.StartTime,
		})
	}
	return nil
}

func (l *ServiceRelationListener) ParseExit(_ context.Context, span *model.Span, info *model.SegmentCoreInfo) error {
	if span.PeerID == 0 {
		return nil
	}
	l.samples = append(l.samples, sample{
		meter.ServiceRelationEntity(info.ServiceID, span.PeerID),
		ServiceRelationClientCpm,
		1,
		span.StartTime,
	})
	return nil
}

func (l *ServiceRelationListener) Build(ctx context.Context) error {
	return emit(ctx, l.acceptor, l.samples)
}
