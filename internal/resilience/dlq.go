package resilience

import (
	"time"

	"github.com/rentguard/rentguard-cli/internal/model"
)

// DeadLetter is a ledger record whose evaluation failed, kept so it can be
// corrected or resubmitted later.
type DeadLetter struct {
	Index     int                 `json:"index"`
	TenantID  string              `json:"tenant_id,omitempty"`
	Record    *model.LedgerRecord `json:"record,omitempty"`
	Error     string              `json:"error"`
	Kind      Kind                `json:"kind"`
	ErrorType string              `json:"error_type"` // "transient" or "permanent"
	FailedAt  time.Time           `json:"failed_at"`
}

// NewDeadLetter captures a failed evaluation of rec.
func NewDeadLetter(index int, rec *model.LedgerRecord, err error, at time.Time) DeadLetter {
	dl := DeadLetter{
		Index:     index,
		Record:    rec,
		Error:     err.Error(),
		Kind:      KindOf(err),
		ErrorType: ClassifyError(err),
		FailedAt:  at.UTC(),
	}
	if rec != nil {
		dl.TenantID = rec.TenantID
	}
	return dl
}

// Retryable reports whether resubmitting the record unchanged might succeed.
func (d DeadLetter) Retryable() bool {
	return d.ErrorType == "transient"
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
