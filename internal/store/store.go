// Package store holds a session's evaluated artifacts and the per-artifact
// detail expansion state shown alongside them.
package store

import (
	"github.com/rentguard/rentguard-cli/internal/model"
)

// Store is a newest-first collection of artifacts. Entries are never
// deduplicated or removed; insertion order is the only notion of recency.
type Store interface {
	// Record inserts art at the front.
	Record(art model.Artifact)
	// All returns the current sequence, newest first.
	All() []model.Artifact
	// FilterByTenant returns the artifacts for tenantID, newest first.
	FilterByTenant(tenantID string) []model.Artifact
	// Len returns the number of recorded artifacts.
	Len() int
}
