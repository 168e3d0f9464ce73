package exchange

import (
	"context"

	"github.com/Avi18971911/Tracelane/internal/registry"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"go.uber.org/zap"
)

// IDExchanger replaces agent-local names with global numeric IDs in place. Every method returns
// true only if every name it saw now has an ID. Fields that already carry an ID are left alone,
// so exchanging the same segment twice is a no-op the second time.
type IDExchanger interface {
	ExchangeSegment(ctx context.Context, segment *model.Segment) bool
	ExchangeSpan(ctx context.Context, span *model.Span, serviceID int32) bool
	ExchangeReference(ctx context.Context, ref *model.Reference, serviceID int32) bool
}

type IDExchangerImpl struct {
	registry registry.Registry
	logger   *zap.Logger
}

func NewIDExchangerImpl(registry registry.Registry, logger *zap.Logger) *IDExchangerImpl {
	return &IDExchangerImpl{
		registry: registry,
		logger:   logger,
	}
}

// ExchangeSegment exchanges the segment header and then every span. It does not stop at the
// first failure so that everything resolvable is registered on the first pass.
func (ex *IDExchangerImpl) ExchangeSegment(ctx context.Context, segment *model.Segment) bool {
	exchanged := true
	if segment.ServiceID == 0 && segment.ServiceName != "" {
		id, err := ex.registry.RegisterAndResolve(ctx, registry.ServiceScope, registry.NoParent, segment.ServiceName)
		if err != nil {
			ex.logRegistryError("service", segment.ServiceName, err)
			exchanged = false
		} else {
			segment.ServiceID = id
		}
	}

	if segment.ServiceInstanceID == 0 && segment.ServiceInstanceName != "" {
		if segment.ServiceID == 0 {
			exchanged = false
		} else {
			id, err := ex.registry.RegisterAndResolve(
				ctx,
				registry.ServiceInstanceScope,
				segment.ServiceID,
				segment.ServiceInstanceName,
			)
			if err != nil {
				ex.logRegistryError("service instance", segment.ServiceInstanceName, err)
				exchanged = false
			} else {
				segment.ServiceInstanceID = id
			}
		}
	}

	for i := range segment.Spans {
		if !ex.ExchangeSpan(ctx, &segment.Spans[i], segment.ServiceID) {
			exchanged = false
		}
	}
	return exchanged
}

func (ex *IDExchangerImpl) ExchangeSpan(ctx context.Context, span *model.Span, serviceID int32) bool {
	exchanged := true
	if span.OperationNameID == 0 && span.OperationName != "" {
		if id, ok := ex.registerUnder(ctx, registry.EndpointScope, serviceID, span.OperationName); ok {
			span.OperationNameID = id
		} else {
			exchanged = false
		}
	}

	if span.PeerID == 0 && span.Peer != "" {
		if id, ok := ex.registerUnder(ctx, registry.NetworkAddressScope, registry.NoParent, span.Peer); ok {
			span.PeerID = id
		} else {
			exchanged = false
		}
	}

	for i := range span.Refs {
		if !ex.ExchangeReference(ctx, &span.Refs[i], serviceID) {
			exchanged = false
		}
	}
	return exchanged
}

// ExchangeReference never registers the parent service: a service registers itself through its
// own segments, so until then the reference stays unresolved. A reference without a parent
// service name is treated as belonging to serviceID.
func (ex *IDExchangerImpl) ExchangeReference(ctx context.Context, ref *model.Reference, serviceID int32) bool {
	exchanged := true
	if ref.ParentServiceID == 0 && ref.ParentServiceName != "" {
		id, found, err := ex.registry.Resolve(ctx, registry.ServiceScope, registry.NoParent, ref.ParentServiceName)
		switch {
		case err != nil:
			ex.logRegistryError("parent service", ref.ParentServiceName, err)
			exchanged = false
		case !found:
			ex.logger.Debug("Parent service not registered yet", zap.String("service", ref.ParentServiceName))
			exchanged = false
		default:
			ref.ParentServiceID = id
		}
	}

	if ref.ParentEndpointID == 0 && ref.ParentEndpointName != "" {
		parentServiceID := ref.ParentServiceID
		if ref.ParentServiceName == "" && parentServiceID == 0 {
			parentServiceID = serviceID
		}
		if id, ok := ex.registerUnder(ctx, registry.EndpointScope, parentServiceID, ref.ParentEndpointName); ok {
			ref.ParentEndpointID = id
		} else {
			exchanged = false
		}
	}

	if ref.NetworkAddressID == 0 && ref.NetworkAddress != "" {
		if id, ok := ex.registerUnder(ctx, registry.NetworkAddressScope, registry.NoParent, ref.NetworkAddress); ok {
			ref.NetworkAddressID = id
		} else {
			exchanged = false
		}
	}
	return exchanged
}

func (ex *IDExchangerImpl) registerUnder(
	ctx context.Context,
	scope registry.Scope,
	parentID int32,
	name string,
) (int32, bool) {
	if scope == registry.EndpointScope && parentID == 0 {
		return 0, false
	}
	id, err := ex.registry.RegisterAndResolve(ctx, scope, parentID, name)
	if err != nil {
		ex.logRegistryError(scope.String(), name, err)
		return 0, false
	}
	return id, true
}

func (ex *IDExchangerImpl) logRegistryError(kind string, name string, err error) {
	ex.logger.Error(
		"Failed to exchange name for id",
		zap.String("kind", kind),
		zap.String("name", name),
		zap.Error(err),
	)
}
