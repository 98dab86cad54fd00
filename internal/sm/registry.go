package sm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// InstanceID identifies one ProtocolInstance's Runtime. Callers resolve
// through Registry rather than holding a direct *Runtime, per spec.md §9:
// "prefer handle IDs resolved through a registry over direct references"
// for the VM/ProtocolInstance back-pointers used during cancellation.
type InstanceID uuid.UUID

// NewInstanceID mints a fresh UUIDv4 instance id.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.New())
}

func (id InstanceID) String() string {
	return uuid.UUID(id).String()
}

// ErrUnknownInstance is returned when resolving a handle the Registry has
// never seen, or has already evicted.
var ErrUnknownInstance = errors.New("sm: unknown instance id")

// Registry is the single owner of every live Runtime, indexed by
// InstanceID. It is a "single named service with explicit init/shutdown
// and no ambient access" (spec.md §9).
type Registry struct {
	mu   sync.RWMutex
	byID map[InstanceID]*Runtime
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[InstanceID]*Runtime)}
}

// Register installs a newly constructed Runtime under id. It is an error
// to register the same id twice.
func (r *Registry) Register(id InstanceID, rt *Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return errors.Errorf("sm: instance %s already registered", id)
	}
	r.byID[id] = rt
	return nil
}

// Resolve looks up a live Runtime by id.
func (r *Registry) Resolve(id InstanceID) (*Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byID[id]
	if !ok {
		return nil, ErrUnknownInstance
	}
	return rt, nil
}

// Evict removes a Runtime from the registry, typically once it has
// reached a terminal state and its outputs have been harvested.
func (r *Registry) Evict(id InstanceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Len reports how many instances are currently live, used by metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
