package core

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Registry hands out small integer identifiers and remembers who owns them.
// Released identifiers are reused, lowest first.
type Registry struct {
	mu     sync.Mutex
	owners []interface{}
}

func NewRegistry(capacity int) *Registry {
	return &Registry{owners: make([]interface{}, 0, capacity)}
}

// Acquire reserves an identifier for owner. owner must not be nil.
func (r *Registry) Acquire(owner interface{}) uint32 {
	Assert(owner != nil, "registry: nil owner")

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, o := range r.owners {
		// Existing free spot. Take it.
		if o == nil {
			r.owners[i] = owner
			return uint32(i)
		}
	}
	r.owners = append(r.owners, owner)
	return uint32(len(r.owners) - 1)
}

// Release frees id so it can be handed out again.
func (r *Registry) Release(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.owners) {
		return errors.Newf("registry: id '%d' out of range (max=%d). Nothing was done", id, len(r.owners))
	}
	if r.owners[id] == nil {
		return errors.Newf("registry: id '%d' is not in use. Nothing was done", id)
	}
	r.owners[id] = nil
	return nil
}

// Owner returns the owner of id, or nil when the id is free.
func (r *Registry) Owner(id uint32) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.owners) {
		return nil
	}
	return r.owners[id]
}

// Len reports how many identifiers are currently in use.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.owners {
		if o != nil {
			n++
		}
	}
	return n
}
