package zabi

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Opener constructs a capability instance for a handle, returning the
// ops/ctx/flags the handle table should install and an opaque close
// callback run when the handle is released.
type Opener func() (readOps ReadOps, pollOps PollOps, ctx any, hflags HFlag, closeFn func(), err error)

// Registry maps a (kind, name) capability tuple, e.g.
// ("file", "aio@v1"), to the Opener that instantiates it (GLOSSARY:
// "Capability: a named, versioned service ... obtained from the
// runtime by opening a kind/name tuple"). Grounded on the teacher's
// module registry's map-plus-mutex shape (kernel/threads/registry).
type Registry struct {
	mu       sync.RWMutex
	openers  map[string]Opener
	instances map[int]*instance
}

type instance struct {
	id      uuid.UUID
	kind    string
	name    string
	closeFn func()
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		openers:   make(map[string]Opener),
		instances: make(map[int]*instance),
	}
}

func key(kind, name string) string {
	return kind + "/" + name
}

// Register associates an Opener with a (kind, name) tuple. Intended
// to be called once at startup per built-in capability (file/aio,
// and future capability kinds).
func (r *Registry) Register(kind, name string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[key(kind, name)] = open
}

// Open instantiates the named capability onto a fresh handle in
// table, recording the instance under a random UUID for diagnostics.
func (r *Registry) Open(table *Table, kind, name string) (int, error) {
	r.mu.RLock()
	open, ok := r.openers[key(kind, name)]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("zabi: no capability registered for %s/%s", kind, name)
	}

	readOps, pollOps, ctx, hflags, closeFn, err := open()
	if err != nil {
		return 0, fmt.Errorf("zabi: opening %s/%s: %w", kind, name, err)
	}

	h, err := table.Alloc(readOps, pollOps, ctx, hflags)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return 0, err
	}

	r.mu.Lock()
	r.instances[h] = &instance{id: uuid.New(), kind: kind, name: name, closeFn: closeFn}
	r.mu.Unlock()
	return h, nil
}

// Close releases a capability instance's handle and runs its close
// callback.
func (r *Registry) Close(table *Table, h int) {
	r.mu.Lock()
	inst, ok := r.instances[h]
	if ok {
		delete(r.instances, h)
	}
	r.mu.Unlock()

	table.Release(h)
	if ok && inst.closeFn != nil {
		inst.closeFn()
	}
}

// InstanceID returns the UUID assigned to the capability instance
// living at handle h, for diagnostics/logging.
func (r *Registry) InstanceID(h int) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[h]
	if !ok {
		return uuid.UUID{}, false
	}
	return inst.id, true
}
