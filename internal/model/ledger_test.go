package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecord_MarshalOmitsUnsetOptionals(t *testing.T) {
	t.Parallel()

	balance := 250.0
	rec := LedgerRecord{TenantID: "T-100", DueDate: "2024-05-01", Balance: &balance}

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id":"T-100","due_date":"2024-05-01","balance":250}`, string(out))
}

func TestLedgerRecord_UnmarshalWithoutValidation(t *testing.T) {
	t.Parallel()

	var rec LedgerRecord
	require.NoError(t, json.Unmarshal([]byte(`{"tenant_id":"T-1","balance":true,"unit":"4B"}`), &rec))

	assert.Equal(t, "T-1", rec.TenantID)
	assert.Nil(t, rec.Balance)
	assert.Equal(t, true, rec.Extra["balance"])
	assert.Equal(t, "4B", rec.Extra["unit"])
	assert.Equal(t, FieldDueDate, rec.MissingField())

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id":"T-1","balance":true,"unit":"4B"}`, string(out))
}

func TestLedgerRecord_StringBalance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"decimal", `"120.75"`, 120.75},
		{"padded", `" 42 "`, 42},
		{"negative", `"-3.5"`, -3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec LedgerRecord
			require.NoError(t, json.Unmarshal([]byte(`{"tenant_id":"T-1","due_date":"2024-05-01","balance":`+tt.raw+`}`), &rec))

			require.NotNil(t, rec.Balance)
			assert.InDelta(t, tt.want, *rec.Balance, 1e-9)
			assert.Empty(t, rec.MissingField())
			assert.Nil(t, rec.Extra)
		})
	}
}

func TestLedgerRecord_StringBalanceNotANumber(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`"lots"`, `"NaN"`, `"Inf"`} {
		var rec LedgerRecord
		err := json.Unmarshal([]byte(`{"tenant_id":"T-1","balance":`+raw+`}`), &rec)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrBalanceNotNumber, raw)
	}
}

func TestLedgerRecord_EmptyStringBalanceIsMissing(t *testing.T) {
	t.Parallel()

	var rec LedgerRecord
	require.NoError(t, json.Unmarshal([]byte(`{"tenant_id":"T-1","due_date":"2024-05-01","balance":""}`), &rec))

	assert.Nil(t, rec.Balance)
	assert.Equal(t, FieldBalance, rec.MissingField())
}

func TestLedgerRecord_OptionalFields(t *testing.T) {
	t.Parallel()

	raw := `{"tenant_id":"T-1","due_date":"2024-05-01","balance":10,"no_notice_sent":false,
		"current_date":"2024-05-20","human_block":true,"human_override":false,"override_reason":"plan"}`

	var rec LedgerRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	require.NotNil(t, rec.NoNoticeSent)
	assert.False(t, *rec.NoNoticeSent)
	require.NotNil(t, rec.CurrentDate)
	assert.Equal(t, "2024-05-20", *rec.CurrentDate)
	require.NotNil(t, rec.HumanBlock)
	assert.True(t, *rec.HumanBlock)
	require.NotNil(t, rec.OverrideReason)
	assert.Equal(t, "plan", *rec.OverrideReason)
	assert.Empty(t, rec.MissingField())
	assert.Nil(t, rec.Extra)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestLedgerRecord_MissingFieldOrder(t *testing.T) {
	t.Parallel()

	balance := 1.0
	tests := []struct {
		name string
		rec  LedgerRecord
		want string
	}{
		{"empty", LedgerRecord{}, FieldTenantID},
		{"tenant only", LedgerRecord{TenantID: "T"}, FieldDueDate},
		{"no balance", LedgerRecord{TenantID: "T", DueDate: "2024-01-01"}, FieldBalance},
		{"complete", LedgerRecord{TenantID: "T", DueDate: "2024-01-01", Balance: &balance}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.MissingField())
		})
	}
}

func TestSampleLedger(t *testing.T) {
	t.Parallel()

	rec := SampleLedger()
	assert.Equal(t, "RG-DEMO-001", rec.TenantID)
	assert.Empty(t, rec.MissingField())
	assert.InDelta(t, 120.75, *rec.Balance, 0.0001)
	assert.True(t, *rec.NoNoticeSent)
}
