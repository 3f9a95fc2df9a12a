package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// parseXLSX reads the first sheet of a workbook. The first non-blank row is
// the header; the following non-blank rows follow the CSV column rules.
func parseXLSX(data []byte, limit int) ([]*model.LedgerRecord, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, resilience.NewInputError(StageXLSX, eris.Wrap(err, "open workbook"))
	}
	if len(f.Sheets) == 0 {
		return nil, resilience.NewInputError(StageXLSX, eris.New("workbook has no sheets"))
	}

	var (
		header []string
		rows   [][]string
	)
	for _, row := range f.Sheets[0].Rows {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		if header == nil {
			header = cells
			continue
		}
		if limit >= 0 && len(rows) >= limit {
			break
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, resilience.NewInputError(StageXLSX, eris.New("sheet contained no rows"))
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

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
