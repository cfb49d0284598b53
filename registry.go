package homepulse

import "sync"

// EntityRegistry is a live, read-only view of every known entity's current
// state. Implementations must be safe for concurrent use.
type EntityRegistry interface {
	// Snapshot returns the current state of one entity.
	Snapshot(entityID string) (EntitySnapshot, bool)

	// All returns a snapshot of every known entity.
	All() []EntitySnapshot
}

// Ensure interfaces are implemented.
var (
	_ EntityRegistry = (*StaticRegistry)(nil)
	_ EntityRegistry = (*WSRegistry)(nil)
)

// StaticRegistry is a map-backed EntityRegistry. It is used when embedding
// the engine in a host that already tracks entity state, and in tests.
type StaticRegistry struct {
	mu       sync.RWMutex
	entities map[string]EntitySnapshot
}

// NewStaticRegistry creates a registry seeded with the given snapshots.
func NewStaticRegistry(snapshots ...EntitySnapshot) *StaticRegistry {
	r := &StaticRegistry{entities: make(map[string]EntitySnapshot, len(snapshots))}
	for _, s := range snapshots {
		r.Set(s)
	}
	return r
}

// Set stores or replaces an entity snapshot. The domain is derived from the
// entity ID when unset.
func (r *StaticRegistry) Set(s EntitySnapshot) {
	if s.Domain == "" {
		s.Domain = DomainOf(s.EntityID)
	}
	r.mu.Lock()
	r.entities[s.EntityID] = s
	r.mu.Unlock()
}

// Delete removes an entity.
func (r *StaticRegistry) Delete(entityID string) {
	r.mu.Lock()
	delete(r.entities, entityID)
	r.mu.Unlock()
}

// Snapshot returns the current state of one entity.
func (r *StaticRegistry) Snapshot(entityID string) (EntitySnapshot, bool) {
	r.mu.RLock()
	s, ok := r.entities[entityID]
	r.mu.RUnlock()
	return s, ok
}

// All returns every known entity.
func (r *StaticRegistry) All() []EntitySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EntitySnapshot, 0, len(r.entities))
	for _, s := range r.entities {
		out = append(out, s)
	}
	return out
}
