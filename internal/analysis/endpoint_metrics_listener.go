package analysis

import (
	"context"

	"github.com/Avi18971911/Tracelane/internal/meter"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
)

// EndpointMetricsListener turns every entry span into endpoint and service traffic samples.
type EndpointMetricsListener struct {
	listener.NopListener
	acceptor MetricsAcceptor
	samples  []sample
}

func NewEndpointMetricsListenerFactory(acceptor MetricsAcceptor) listener.Factory {
	return listener.FactoryFunc(func() listener.SpanListener {
		return &EndpointMetricsListener{acceptor: acceptor}
	})
}

func (l *EndpointMetricsListener) Name() string { return "endpoint_metrics" }

func (l *EndpointMetricsListener) Points() listener.Point { return listener.Entry }

func (l *EndpointMetricsListener) ParseEntry(_ context.Context, span *model.Span, info *model.SegmentCoreInfo) error {
	service := meter.ServiceEntity(info.ServiceID)
	l.samples = append(l.samples,
		sample{service, ServiceCpm, 1, span.StartTime},
		sample{service, ServiceRespTime, span.Duration(), span.StartTime},
	)
	if span.OperationNameID == 0 {
		return nil
	}
	endpoint := meter.EndpointEntity(info.ServiceID, span.OperationNameID)
	l.samples = append(l.samples,
		sample{endpoint, EndpointCpm, 1, span.StartTime},
		sample{endpoint, EndpointRespTime, span.Duration(), span.StartTime},
		sample{endpoint, EndpointError, boolToCount(span.IsError), span.StartTime},
	)
	return nil
}

func (l *EndpointMetricsListener) Build(ctx context.Context) error {
	return emit(ctx, l.acceptor, l.samples)
}
