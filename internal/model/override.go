package model

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// OverrideStatus is the review state of an override request.
type OverrideStatus string

const (
	OverridePending  OverrideStatus = "Pending"
	OverrideApproved OverrideStatus = "Approved"
	OverrideRejected OverrideStatus = "Rejected"
)

// Valid reports whether s is one of the known review states.
func (s OverrideStatus) Valid() bool {
	switch s {
	case OverridePending, OverrideApproved, OverrideRejected:
		return true
	}
	return false
}

// OverrideRequest is read-only reference data from the admin review queue. It
// selects which tenant's artifacts go into a packet.
type OverrideRequest struct {
	ID          string         `json:"id" yaml:"id"`
	TenantID    string         `json:"tenant_id" yaml:"tenant_id"`
	Reason      string         `json:"reason" yaml:"reason"`
	RequestedBy string         `json:"requested_by" yaml:"requested_by"`
	Status      OverrideStatus `json:"status" yaml:"status"`
	SubmittedAt time.Time      `json:"submitted_at" yaml:"submitted_at"`
}

// DefaultOverrides is the queue shown when no override file is configured.
var DefaultOverrides = []OverrideRequest{
	{
		ID:          "OVR-1048",
		TenantID:    "RG-2043",
		Reason:      "Pause automated notice while repayment plan is reviewed",
		RequestedBy: "compliance.lead@rentguard.com",
		Status:      OverridePending,
		SubmittedAt: time.Date(2024, time.June, 15, 14, 10, 0, 0, time.UTC),
	},
	{
		ID:          "OVR-1049",
		TenantID:    "RG-1188",
		Reason:      "Human override to prevent duplicate packet",
		RequestedBy: "ops.manager@rentguard.com",
		Status:      OverrideApproved,
		SubmittedAt: time.Date(2024, time.June, 14, 9, 42, 0, 0, time.UTC),
	},
	{
		ID:          "OVR-1050",
		TenantID:    "RG-3201",
		Reason:      "Escalate to counsel before filing",
		RequestedBy: "legal.review@rentguard.com",
		Status:      OverridePending,
		SubmittedAt: time.Date(2024, time.June, 13, 17, 55, 0, 0, time.UTC),
	},
}

// LoadOverrides reads an override queue from a YAML file with a top-level
// "overrides" list. An empty path returns a copy of DefaultOverrides.
func LoadOverrides(path string) ([]OverrideRequest, error) {
	if path == "" {
		return append([]OverrideRequest(nil), DefaultOverrides...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "overrides: read %s", path)
	}

	var wrapper struct {
		Overrides []OverrideRequest `yaml:"overrides"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "overrides: parse")
	}

	for i, o := range wrapper.Overrides {
		if o.ID == "" || o.TenantID == "" {
			return nil, eris.Errorf("overrides: entry %d needs id and tenant_id", i)
		}
		if !o.Status.Valid() {
			return nil, eris.Errorf("overrides: entry %s has unknown status %q", o.ID, o.Status)
		}
	}
	return wrapper.Overrides, nil
}

// FindOverride returns the request with the given id. An empty id selects the
// first entry, matching the admin view's default selection.
func FindOverride(queue []OverrideRequest, id string) (OverrideRequest, bool) {
	if len(queue) == 0 {
		return OverrideRequest{}, false
	}
	if id == "" {
		return queue[0], true
	}
	for _, o := range queue {
		if o.ID == id {
			return o, true
		}
	}
	return OverrideRequest{}, false
}
