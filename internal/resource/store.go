package resource

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Item is one stored attribute
type Item struct {
	Address     string
	Descriptor  Descriptor
	Value       Value
	Previous    Value
	LastSet     time.Time
	LastChanged time.Time
}

// Store is the attribute address space shared by the protocol layer and the
// rule engine. Writers call Set, the engine reads through snapshots.
type Store struct {
	mu       sync.RWMutex
	registry *Registry
	items    map[string]*Item
	now      func() time.Time
}

// NewStore creates an empty store backed by the given registry
func NewStore(registry *Registry) *Store {
	return &Store{
		registry: registry,
		items:    make(map[string]*Item),
		now:      time.Now,
	}
}

// Registry returns the descriptor registry of the store
func (s *Store) Registry() *Registry {
	return s.registry
}

// Set writes a value, converting it to the attribute's native kind.
// It reports whether the value differs from the one stored before.
func (s *Store) Set(address string, v Value) (bool, error) {
	changed, _, err := s.SetAndSnapshot(address, v, nil)
	return changed, err
}

// SetAndSnapshot writes a value and copies the written attribute plus the
// related ones under the same lock, so the snapshot shows exactly this write.
func (s *Store) SetAndSnapshot(address string, v Value, related []string) (bool, Snapshot, error) {
	d, ok := s.registry.Resolve(address)
	if !ok {
		return false, Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownAttribute, address)
	}
	cv, ok := v.Convert(d.Kind)
	if !ok {
		return false, Snapshot{}, fmt.Errorf("attribute %s expects %s, got %s", address, d.Kind, v.Kind())
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it, exists := s.items[address]
	if !exists {
		it = &Item{Address: address, Descriptor: d}
		s.items[address] = it
	}
	changed := !it.Value.Equal(cv)
	it.Previous = it.Value
	it.Value = cv
	it.LastSet = now
	if changed {
		it.LastChanged = now
	}

	snap := Snapshot{items: make(map[string]Item, len(related)+1)}
	snap.items[address] = *it
	for _, a := range related {
		if other, ok := s.items[a]; ok {
			snap.items[a] = *other
		}
	}
	return changed, snap, nil
}

// Current returns the current value of the attribute
func (s *Store) Current(address string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[address]
	if !ok {
		return Value{}, false
	}
	return it.Value, true
}

// Previous returns the value held before the last write
func (s *Store) Previous(address string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[address]
	if !ok || !it.Previous.IsSet() {
		return Value{}, false
	}
	return it.Previous, true
}

// SnapshotOf copies the given attributes under one read lock
func (s *Store) SnapshotOf(addresses []string) Snapshot {
	snap := Snapshot{items: make(map[string]Item, len(addresses))}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range addresses {
		if it, ok := s.items[a]; ok {
			snap.items[a] = *it
		}
	}
	return snap
}

// Items lists the stored attributes of one category ordered by address
func (s *Store) Items(c Category) []Item {
	s.mu.RLock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if it.Descriptor.Category == c {
			out = append(out, *it)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Restore loads values without recording a change. Unknown addresses are skipped.
func (s *Store) Restore(values map[string]Value) int {
	n := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for address, v := range values {
		d, ok := s.registry.Resolve(address)
		if !ok {
			continue
		}
		cv, ok := v.Convert(d.Kind)
		if !ok {
			continue
		}
		s.items[address] = &Item{Address: address, Descriptor: d, Value: cv}
		n++
	}
	return n
}

// Snapshot is a consistent read-only view of a set of attributes
type Snapshot struct {
	items map[string]Item
}

// Current returns the value of the attribute at snapshot time
func (s Snapshot) Current(address string) (Value, bool) {
	it, ok := s.items[address]
	if !ok || !it.Value.IsSet() {
		return Value{}, false
	}
	return it.Value, true
}

// Previous returns the previous value of the attribute at snapshot time
func (s Snapshot) Previous(address string) (Value, bool) {
	it, ok := s.items[address]
	if !ok || !it.Previous.IsSet() {
		return Value{}, false
	}
	return it.Previous, true
}

// LastChanged returns when the attribute last changed value
func (s Snapshot) LastChanged(address string) time.Time {
	return s.items[address].LastChanged
}
