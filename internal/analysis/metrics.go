package analysis

import (
	"context"
	"fmt"

	"github.com/Avi18971911/Tracelane/internal/meter"
)

const (
	EndpointCpm              = "endpoint_cpm"
	EndpointRespTime         = "endpoint_resp_time"
	EndpointError            = "endpoint_error"
	ServiceCpm               = "service_cpm"
	ServiceRespTime          = "service_resp_time"
	ServiceInstanceCpm       = "service_instance_cpm"
	ServiceRelationServerCpm = "service_relation_server_cpm"
	ServiceRelationClientCpm = "service_relation_client_cpm"
)

// MetricsAcceptor is the part of the meter the listeners feed.
type MetricsAcceptor interface {
	Accept(ctx context.Context, entity meter.Entity, metricName string, value interface{}, timestamp int64) error
}

type MetricsCreator interface {
	Create(metricName string, functionName string, scope meter.ScopeType) (bool, error)
}

// CreateMetrics defines every metric the listeners of this package emit.
func CreateMetrics(mc MetricsCreator) error {
	definitions := []struct {
		name     string
		function string
		scope    meter.ScopeType
	}{
		{EndpointCpm, meter.SumFunction, meter.EndpointScope},
		{EndpointRespTime, meter.AvgFunction, meter.EndpointScope},
		{EndpointError, meter.SumFunction, meter.EndpointScope},
		{ServiceCpm, meter.SumFunction, meter.ServiceScope},
		{ServiceRespTime, meter.AvgFunction, meter.ServiceScope},
		{ServiceInstanceCpm, meter.SumFunction, meter.ServiceInstanceScope},
		{ServiceRelationServerCpm, meter.SumFunction, meter.ServiceRelationScope},
		{ServiceRelationClientCpm, meter.SumFunction, meter.ServiceRelationScope},
	}
	for _, d := range definitions {
		if _, err := mc.Create(d.name, d.function, d.scope); err != nil {
			return fmt.Errorf("failed to create metric %s: %w", d.name, err)
		}
	}
	return nil
}

type sample struct {
	entity     meter.Entity
	metricName string
	value      interface{}
	timestamp  int64
}

// emit sends every sample and returns the first error, after trying all of them.
func emit(ctx context.Context, acceptor MetricsAcceptor, samples []sample) error {
	var first error
	for _, s := range samples {
		if err := acceptor.Accept(ctx, s.entity, s.metricName, s.value, s.timestamp); err != nil && first == nil {
			first = fmt.Errorf("failed to accept %s: %w", s.metricName, err)
		}
	}
	return first
}

func boolToCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
