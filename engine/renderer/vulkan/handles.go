package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framepace/engine/core"
)

// handleTable maps the opaque ids handed to the frame renderer onto Vulkan
// objects. Ids come from a core.Registry shifted by one so 0 stays the null
// handle.
type handleTable struct {
	registry *core.Registry
}

func newHandleTable() *handleTable {
	return &handleTable{registry: core.NewRegistry(256)}
}

func (t *handleTable) put(obj interface{}) uint64 {
	return uint64(t.registry.Acquire(obj)) + 1
}

func (t *handleTable) get(id uint64) interface{} {
	if id == 0 {
		return nil
	}
	return t.registry.Owner(uint32(id - 1))
}

func (t *handleTable) drop(id uint64) {
	if id == 0 {
		return
	}
	if err := t.registry.Release(uint32(id - 1)); err != nil {
		core.LogWarn("handle %d released twice: %s", id, err)
	}
}

// live reports how many objects are still registered.
func (t *handleTable) live() int {
	return t.registry.Len()
}

// lookup resolves id to an object of type T. The null handle and ids that
// refer to another kind of object yield the zero value.
func lookup[T any](t *handleTable, id uint64) T {
	v, _ := t.get(id).(T)
	return v
}

func mustLookup[T any](t *handleTable, id uint64, kind string) (T, error) {
	v, ok := t.get(id).(T)
	if !ok {
		return v, errors.Newf("unknown %s handle %d", kind, id)
	}
	return v, nil
}
