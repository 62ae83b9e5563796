// Package derived implements a store of lazily computed data attached to an
// owner such as a mesh. Every entry is computed at most once until the store
// is invalidated, regardless of how many goroutines ask for it.
package derived

import "sync"

// Freer is implemented by derived values that hold resources which must be
// released when the owner's derived data is invalidated.
type Freer interface {
	Free()
}

type entry struct {
	once sync.Once
	v    any
}

// Store maps keys to lazily computed values. The zero value is ready to use.
// A Store must not be copied after first use.
type Store struct {
	mu      sync.Mutex
	entries map[any]*entry
}

// Get returns the value stored under key, computing it with build if absent.
// Concurrent callers for the same key block until the single build finishes
// and all observe its result. Builds for different keys do not block each other.
func (s *Store) Get(key any, build func() any) any {
	s.mu.Lock()
	if s.entries == nil {
		s.entries = make(map[any]*entry)
	}
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	s.mu.Unlock()
	e.once.Do(func() { e.v = build() })
	return e.v
}

// Peek returns the value under key if it has been built.
func (s *Store) Peek(key any) (any, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	// A concurrent build in progress is waited for.
	e.once.Do(func() {})
	return e.v, e.v != nil
}

// Invalidate drops every entry, freeing values that implement Freer.
// It must not run concurrently with readers of the values it frees.
func (s *Store) Invalidate() {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()
	for _, e := range entries {
		e.once.Do(func() {})
		if f, ok := e.v.(Freer); ok {
			f.Free()
		}
	}
}
