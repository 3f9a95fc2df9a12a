package ingest

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// parseCSV reads the header and up to limit data rows (limit < 0 reads all).
// Blank lines are skipped. Rows beyond limit are never parsed, so a malformed
// trailing row cannot fail a single-record upload.
func parseCSV(text string, limit int) ([]*model.LedgerRecord, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(text)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, resilience.NewInputError(StageCSV, eris.New("csv contained no rows"))
	}
	if err != nil {
		return nil, resilience.NewInputError(StageCSV, eris.Wrap(err, "read header"))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for limit < 0 || len(rows) < limit {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, resilience.NewInputError(StageCSV, eris.Wrapf(err, "read row %d", len(rows)+1))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, resilience.NewInputError(StageCSV, eris.New("csv contained no rows"))
	}

	records := make([]*model.LedgerRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := recordFromRow(header, row)
		if err != nil {
			if len(rows) > 1 {
				return nil, eris.Wrapf(err, "row %d", i+1)
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// mapRow pairs each header with the value in the same position. Missing
// trailing values become empty strings; duplicate headers keep the last value.
func mapRow(header, row []string) map[string]string {
	out := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			out[h] = strings.TrimSpace(row[i])
		} else {
			out[h] = ""
		}
	}
	return out
}

// recordFromRow builds a ledger record from one delimited row. The three
// required columns must exist in the header and hold non-empty values.
func recordFromRow(header, row []string) (*model.LedgerRecord, error) {
	values := mapRow(header, row)

	for _, col := range model.RequiredLedgerFields {
		v, ok := values[col]
		if !ok {
			return nil, resilience.NewInputError(StageColumns, eris.Errorf("missing column %q", col))
		}
		if v == "" {
			return nil, resilience.NewInputError(StageColumns, eris.Errorf("empty value in column %q", col))
		}
	}

	balance, err := parseBalance(values[model.FieldBalance])
	if err != nil {
		return nil, err
	}

	noNotice := true
	if v := values[model.FieldNoNoticeSent]; v != "" {
		noNotice = !strings.EqualFold(v, "false")
	}

	rec := &model.LedgerRecord{
		TenantID:     values[model.FieldTenantID],
		DueDate:      values[model.FieldDueDate],
		Balance:      &balance,
		NoNoticeSent: &noNotice,
	}
	if v := values[model.FieldCurrentDate]; v != "" {
		rec.CurrentDate = &v
	}
	if v := values[model.FieldOverrideReason]; v != "" {
		rec.OverrideReason = &v
	}
	if v := values[model.FieldHumanBlock]; v != "" {
		b := strings.EqualFold(v, "true")
		rec.HumanBlock = &b
	}
	if v := values[model.FieldHumanOverride]; v != "" {
		b := strings.EqualFold(v, "true")
		rec.HumanOverride = &b
	}
	return rec, nil
}

// parseBalance coerces a cell to a finite number.
func parseBalance(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, resilience.NewInputError(StageBalance, eris.Errorf("balance %q is not a number", s))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, resilience.NewInputError(StageBalance, eris.Errorf("balance %q is not a finite number", s))
	}
	return f, nil
}
