package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrBalanceNotNumber is returned when a JSON balance is a string that does
// not parse as a finite number.
var ErrBalanceNotNumber = eris.New("balance is not a number")

// Ledger field names as they appear on the wire and in CSV headers.
const (
	FieldTenantID       = "tenant_id"
	FieldDueDate        = "due_date"
	FieldBalance        = "balance"
	FieldNoNoticeSent   = "no_notice_sent"
	FieldCurrentDate    = "current_date"
	FieldHumanBlock     = "human_block"
	FieldHumanOverride  = "human_override"
	FieldOverrideReason = "override_reason"
)

// RequiredLedgerFields lists the fields that must be present and non-empty
// before a record may be dispatched, in the order they are checked.
var RequiredLedgerFields = []string{FieldTenantID, FieldDueDate, FieldBalance}

// LedgerRecord is the canonical input submitted to the decision engine for one
// tenant. Optional fields are pointers so that an absent value is never sent.
type LedgerRecord struct {
	TenantID       string
	DueDate        string
	Balance        *float64
	NoNoticeSent   *bool
	CurrentDate    *string
	HumanBlock     *bool
	HumanOverride  *bool
	OverrideReason *string

	// Extra holds attributes the pipeline does not interpret. They are sent to
	// the engine exactly as received.
	Extra map[string]any
}

// MissingField returns the first required field that is absent or empty, or
// "" when the record is complete.
func (r *LedgerRecord) MissingField() string {
	switch {
	case r.TenantID == "":
		return FieldTenantID
	case r.DueDate == "":
		return FieldDueDate
	case r.Balance == nil:
		return FieldBalance
	}
	return ""
}

// MarshalJSON encodes the known fields that are set together with Extra.
func (r LedgerRecord) MarshalJSON() ([]byte, error) {
	known := make(map[string]any, 8)
	if r.TenantID != "" {
		known[FieldTenantID] = r.TenantID
	}
	if r.DueDate != "" {
		known[FieldDueDate] = r.DueDate
	}
	if r.Balance != nil {
		known[FieldBalance] = *r.Balance
	}
	if r.NoNoticeSent != nil {
		known[FieldNoNoticeSent] = *r.NoNoticeSent
	}
	if r.CurrentDate != nil {
		known[FieldCurrentDate] = *r.CurrentDate
	}
	if r.HumanBlock != nil {
		known[FieldHumanBlock] = *r.HumanBlock
	}
	if r.HumanOverride != nil {
		known[FieldHumanOverride] = *r.HumanOverride
	}
	if r.OverrideReason != nil {
		known[FieldOverrideReason] = *r.OverrideReason
	}
	return encodeObject(known, r.Extra)
}

// UnmarshalJSON decodes a JSON object without validating field presence.
// A string balance is parsed as a number. Other values whose type does not
// match the known field are kept in Extra so the engine still sees them.
func (r *LedgerRecord) UnmarshalJSON(data []byte) error {
	var rec LedgerRecord
	extra, err := decodeObject(data, map[string]any{
		FieldTenantID:       &rec.TenantID,
		FieldDueDate:        &rec.DueDate,
		FieldBalance:        &rec.Balance,
		FieldNoNoticeSent:   &rec.NoNoticeSent,
		FieldCurrentDate:    &rec.CurrentDate,
		FieldHumanBlock:     &rec.HumanBlock,
		FieldHumanOverride:  &rec.HumanOverride,
		FieldOverrideReason: &rec.OverrideReason,
	})
	if err != nil {
		return err
	}
	if rec.Balance == nil {
		if s, ok := extra[FieldBalance].(string); ok && strings.TrimSpace(s) != "" {
			balance, err := parseBalanceString(s)
			if err != nil {
				return err
			}
			rec.Balance = &balance
			delete(extra, FieldBalance)
			if len(extra) == 0 {
				extra = nil
			}
		}
	}
	rec.Extra = extra
	*r = rec
	return nil
}

func parseBalanceString(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Wrapf(ErrBalanceNotNumber, "balance %q", s)
	}
	return v, nil
}

// SampleLedger returns the demo record used by the "run sample case" action.
func SampleLedger() *LedgerRecord {
	balance := 120.75
	noNotice := true
	return &LedgerRecord{
		TenantID:     "RG-DEMO-001",
		DueDate:      "2024-05-01",
		Balance:      &balance,
		NoNoticeSent: &noNotice,
	}
}

var _ json.Marshaler = LedgerRecord{}
