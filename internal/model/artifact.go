package model

// StatusClear is the artifact status the engine emits when no enforcement
// action applies.
const StatusClear = "CLEAR"

// Artifact is the engine's record of one evaluation. Only the fields the
// pipeline reads are typed; everything else rides along in Extra and is
// written back out unchanged.
type Artifact struct {
	ArtifactID  string         `json:"artifact_id,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Decision    string         `json:"decision,omitempty"`
	Action      string         `json:"action,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Thresholds  map[string]any `json:"thresholds,omitempty"`

	Extra map[string]any `json:"-"`
}

// MarshalJSON encodes the typed fields merged with Extra.
func (a Artifact) MarshalJSON() ([]byte, error) {
	known := make(map[string]any, 8)
	for k, v := range map[string]string{
		"artifact_id": a.ArtifactID,
		"tenant_id":   a.TenantID,
		"status":      a.Status,
		"decision":    a.Decision,
		"action":      a.Action,
		"explanation": a.Explanation,
		"timestamp":   a.Timestamp,
	} {
		if v != "" {
			known[k] = v
		}
	}
	if a.Thresholds != nil {
		known["thresholds"] = a.Thresholds
	}
	return encodeObject(known, a.Extra)
}

// UnmarshalJSON decodes an engine artifact, keeping unknown fields in Extra.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var art Artifact
	extra, err := decodeObject(data, map[string]any{
		"artifact_id": &art.ArtifactID,
		"tenant_id":   &art.TenantID,
		"status":      &art.Status,
		"decision":    &art.Decision,
		"action":      &art.Action,
		"explanation": &art.Explanation,
		"timestamp":   &art.Timestamp,
		"thresholds":  &art.Thresholds,
	})
	if err != nil {
		return err
	}
	art.Extra = extra
	*a = art
	return nil
}

// Clone returns a copy whose maps can be modified without affecting a.
func (a Artifact) Clone() Artifact {
	a.Thresholds = cloneMap(a.Thresholds)
	a.Extra = cloneMap(a.Extra)
	return a
}
