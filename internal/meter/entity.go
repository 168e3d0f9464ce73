package meter

import "fmt"

type ScopeType int

const (
	ServiceScope ScopeType = iota + 1
	ServiceInstanceScope
	EndpointScope
	ServiceRelationScope
	AlarmScope
)

func (s ScopeType) String() string {
	switch s {
	case ServiceScope:
		return "service"
	case ServiceInstanceScope:
		return "service_instance"
	case EndpointScope:
		return "endpoint"
	case ServiceRelationScope:
		return "service_relation"
	case AlarmScope:
		return "alarm"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Entity is what a sample is about. Which fields are used depends on Scope.
type Entity struct {
	Scope             ScopeType
	ServiceID         int32
	ServiceInstanceID int32
	EndpointID        int32
	DestServiceID     int32
	// Name is the already formed id of an AlarmScope entity.
	Name string
}

func ServiceEntity(serviceID int32) Entity {
	return Entity{Scope: ServiceScope, ServiceID: serviceID}
}

func ServiceInstanceEntity(serviceID int32, instanceID int32) Entity {
	return Entity{Scope: ServiceInstanceScope, ServiceID: serviceID, ServiceInstanceID: instanceID}
}

func EndpointEntity(serviceID int32, endpointID int32) Entity {
	return Entity{Scope: EndpointScope, ServiceID: serviceID, EndpointID: endpointID}
}

func ServiceRelationEntity(sourceServiceID int32, destServiceID int32) Entity {
	return Entity{Scope: ServiceRelationScope, ServiceID: sourceServiceID, DestServiceID: destServiceID}
}

func AlarmEntity(name string) Entity {
	return Entity{Scope: AlarmScope, Name: name}
}

// ID renders the entity as the string used in row keys.
func (e Entity) ID() (string, error) {
	switch e.Scope {
	case ServiceScope:
		if e.ServiceID == 0 {
			return "", fmt.Errorf("%w: service id is missing", ErrInvalidEntity)
		}
		return fmt.Sprintf("%d", e.ServiceID), nil
	case ServiceInstanceScope:
		if e.ServiceID == 0 || e.ServiceInstanceID == 0 {
			return "", fmt.Errorf("%w: service instance id is missing", ErrInvalidEntity)
		}
		return fmt.Sprintf("%d_%d", e.ServiceID, e.ServiceInstanceID), nil
	case EndpointScope:
		if e.ServiceID == 0 || e.EndpointID == 0 {
			return "", fmt.Errorf("%w: endpoint id is missing", ErrInvalidEntity)
		}
		return fmt.Sprintf("%d_%d", e.ServiceID, e.EndpointID), nil
	case ServiceRelationScope:
		if e.ServiceID == 0 || e.DestServiceID == 0 {
			return "", fmt.Errorf("%w: relation needs both service ids", ErrInvalidEntity)
		}
		return fmt.Sprintf("%d-%d", e.ServiceID, e.DestServiceID), nil
	case AlarmScope:
		if e.Name == "" {
			return "", fmt.Errorf("%w: alarm name is missing", ErrInvalidEntity)
		}
		return e.Name, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %s", ErrInvalidEntity, e.Scope)
	}
}
