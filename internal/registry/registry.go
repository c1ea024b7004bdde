// Package registry maintains the catalog of capabilities the orchestrator
// can dispatch to. Registration happens at startup; reads afterwards go
// through immutable snapshots so concurrent turns never contend on a lock.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tclaveria/concierge/pkg/models"
)

// DuplicateCapabilityError is returned when registering a name that is
// already present.
type DuplicateCapabilityError struct {
	Name string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("capability %q is already registered", e.Name)
}

// UnknownCapabilityError is returned when looking up a name that was never
// registered.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability %q", e.Name)
}

// Snapshot is an immutable view of the registry. Snapshots are safe for
// concurrent use without locking.
type Snapshot struct {
	byName map[string]models.CapabilityDescriptor
	names  []string
}

// List returns all descriptors sorted by name.
func (s *Snapshot) List() []models.CapabilityDescriptor {
	out := make([]models.CapabilityDescriptor, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.byName[name])
	}
	return out
}

// Find returns the descriptor for name.
func (s *Snapshot) Find(name string) (models.CapabilityDescriptor, error) {
	d, ok := s.byName[name]
	if !ok {
		return models.CapabilityDescriptor{}, &UnknownCapabilityError{Name: name}
	}
	return d, nil
}

// Names returns all registered capability names, sorted.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of registered capabilities.
func (s *Snapshot) Len() int {
	return len(s.names)
}

// Registry is the mutable catalog. Register/Replace swap in a fresh
// snapshot under a write lock; readers call Snapshot and never block.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(&Snapshot{byName: map[string]models.CapabilityDescriptor{}})
	return r
}

// Register adds a descriptor. It fails with DuplicateCapabilityError if the
// name is already present and with a validation error for malformed
// descriptors.
func (r *Registry) Register(d models.CapabilityDescriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register capability: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, exists := cur.byName[d.Name]; exists {
		return &DuplicateCapabilityError{Name: d.Name}
	}

	r.snap.Store(cur.with(d))
	return nil
}

// Replace atomically swaps the whole catalog, used by the catalog watcher
// when the source file changes. All descriptors must be valid and unique.
func (r *Registry) Replace(descriptors []models.CapabilityDescriptor) error {
	byName := make(map[string]models.CapabilityDescriptor, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("replace catalog: %w", err)
		}
		if _, exists := byName[d.Name]; exists {
			return &DuplicateCapabilityError{Name: d.Name}
		}
		byName[d.Name] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(newSnapshot(byName))
	return nil
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Find looks up a descriptor in the current snapshot.
func (r *Registry) Find(name string) (models.CapabilityDescriptor, error) {
	return r.Snapshot().Find(name)
}

// List returns all descriptors in the current snapshot.
func (r *Registry) List() []models.CapabilityDescriptor {
	return r.Snapshot().List()
}

// with returns a copy of the snapshot extended with d.
func (s *Snapshot) with(d models.CapabilityDescriptor) *Snapshot {
	byName := make(map[string]models.CapabilityDescriptor, len(s.byName)+1)
	for k, v := range s.byName {
		byName[k] = v
	}
	byName[d.Name] = d
	return newSnapshot(byName)
}

func newSnapshot(byName map[string]models.CapabilityDescriptor) *Snapshot {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Snapshot{byName: byName, names: names}
}
