package registry

import (
	"context"
	"sync"
)

type registryKey struct {
	scope    Scope
	parentID int32
	name     string
}

type MemoryRegistry struct {
	mu     sync.RWMutex
	ids    map[registryKey]int32
	issued map[Scope]map[int32]struct{}
	next   map[Scope]int32
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		ids:    make(map[registryKey]int32),
		issued: make(map[Scope]map[int32]struct{}),
		next:   make(map[Scope]int32),
	}
}

func (mr *MemoryRegistry) Resolve(
	_ context.Context,
	scope Scope,
	parentID int32,
	name string,
) (int32, bool, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	id, ok := mr.ids[registryKey{scope: scope, parentID: parentID, name: name}]
	return id, ok, nil
}

func (mr *MemoryRegistry) RegisterAndResolve(
	ctx context.Context,
	scope Scope,
	parentID int32,
	name string,
) (int32, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	if id, ok, _ := mr.Resolve(ctx, scope, parentID, name); ok {
		return id, nil
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	key := registryKey{scope: scope, parentID: parentID, name: name}
	// another goroutine may have registered it between the two locks
	if id, ok := mr.ids[key]; ok {
		return id, nil
	}
	mr.next[scope]++
	id := mr.next[scope]
	mr.ids[key] = id
	if mr.issued[scope] == nil {
		mr.issued[scope] = make(map[int32]struct{})
	}
	mr.issued[scope][id] = struct{}{}
	return id, nil
}

func (mr *MemoryRegistry) Contains(_ context.Context, scope Scope, id int32) (bool, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	_, ok := mr.issued[scope][id]
	return ok, nil
}
