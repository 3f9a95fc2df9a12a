package store

import (
	"sync"

	"github.com/rentguard/rentguard-cli/internal/model"
)

// Memory is the in-process Store for one session. Artifacts are appended
// internally and read back in reverse, so Record is O(1) amortized.
// The mutex guards memory only; callers that race on Record get an
// arbitrary but consistent order between their two artifacts.
type Memory struct {
	mu    sync.RWMutex
	items []model.Artifact
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

// Record inserts art at the front. Artifacts without an id are accepted.
func (m *Memory) Record(art model.Artifact) {
	m.mu.Lock()
	m.items = append(m.items, art.Clone())
	m.mu.Unlock()
}

// All returns a snapshot, newest first. The snapshot is independent of later
// Record calls.
func (m *Memory) All() []model.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Artifact, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0; i-- {
		out = append(out, m.items[i].Clone())
	}
	return out
}

// FilterByTenant returns the subsequence whose TenantID equals tenantID
// exactly, preserving newest-first order.
func (m *Memory) FilterByTenant(tenantID string) []model.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Artifact
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].TenantID == tenantID {
			out = append(out, m.items[i].Clone())
		}
	}
	return out
}

// Len returns the number of recorded artifacts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

var _ Store = (*Memory)(nil)
