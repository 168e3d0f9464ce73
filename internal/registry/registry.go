package registry

import (
	"context"
	"errors"
	"fmt"
)

type Scope int

const (
	ServiceScope Scope = iota + 1
	ServiceInstanceScope
	EndpointScope
	NetworkAddressScope
)

func (s Scope) String() string {
	switch s {
	case ServiceScope:
		return "service"
	case ServiceInstanceScope:
		return "service_instance"
	case EndpointScope:
		return "endpoint"
	case NetworkAddressScope:
		return "network_address"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// NoParent is used for scopes that are not nested under another entity.
const NoParent int32 = 0

// Registry maps names to globally unique numeric IDs. Instance and endpoint names are scoped to
// their service, so the parent ID is part of the key. Implementations must be safe for
// concurrent use and two callers registering the same name must end up with the same ID.
type Registry interface {
	// Resolve looks up an existing ID without registering anything.
	Resolve(ctx context.Context, scope Scope, parentID int32, name string) (int32, bool, error)
	// RegisterAndResolve returns the ID of name, registering it first if needed.
	RegisterAndResolve(ctx context.Context, scope Scope, parentID int32, name string) (int32, error)
	// Contains reports whether the ID was ever handed out in the scope.
	Contains(ctx context.Context, scope Scope, id int32) (bool, error)
}

var (
	ErrEmptyName = errors.New("cannot register an empty name")
)
