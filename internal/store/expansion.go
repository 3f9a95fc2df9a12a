package store

import "sync"

// Expansion tracks which artifacts have their details shown. It is keyed by
// artifact id and is independent of any Store: ids need not be present.
type Expansion struct {
	mu    sync.Mutex
	state map[string]bool
}

// NewExpansion creates an empty expansion map.
func NewExpansion() *Expansion {
	return &Expansion{state: make(map[string]bool)}
}

// Toggle flips the state for id and returns the new value. An unknown id
// counts as collapsed, so the first Toggle expands it.
func (e *Expansion) Toggle(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := !e.state[id]
	e.state[id] = next
	return next
}

// Expanded reports whether id is currently expanded.
func (e *Expansion) Expanded(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state[id]
}

// ResetAll clears every entry.
func (e *Expansion) ResetAll() {
	e.mu.Lock()
	e.state = make(map[string]bool)
	e.mu.Unlock()
}

// Snapshot returns a copy of the map, including ids toggled back to false.
func (e *Expansion) Snapshot() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]bool, len(e.state))
	for k, v := range e.state {
		out[k] = v
	}
	return out
}

// Len returns the number of tracked ids.
func (e *Expansion) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.state)
}
