// Package ingest turns raw ledger uploads (CSV, JSON or XLSX) into canonical
// ledger records.
package ingest

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/fetcher"
	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// Format is the declared source format of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Failure stages reported on InputError.
const (
	StageRead    = "read"
	StageCSV     = "csv"
	StageJSON    = "json"
	StageXLSX    = "xlsx"
	StageColumns = "columns"
	StageBalance = "balance"
	StageFormat  = "format"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", resilience.NewInputError(StageFormat, eris.Errorf("unknown format %q", s))
}

// DetectFormat picks a format from a location's extension, falling back to
// sniffing the content: a leading '{' or '[' means JSON, anything else CSV.
func DetectFormat(location string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(location)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".xlsx":
		return FormatXLSX
	}
	trimmed := bytes.TrimLeft(content, " \t\r\n\ufeff")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatCSV
}

// Normalize converts raw upload text into exactly one ledger record. Only the
// first data row (CSV, XLSX) or first element (JSON array) is used.
func Normalize(raw string, format Format) (*model.LedgerRecord, error) {
	return normalizeBytes([]byte(raw), format)
}

// NormalizeAll converts every data row (CSV, XLSX) or array element (JSON)
// into a ledger record, for portfolio uploads.
func NormalizeAll(raw string, format Format) ([]*model.LedgerRecord, error) {
	data := []byte(raw)
	if err := checkEmpty(data); err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		text, err := decodeText(data)
		if err != nil {
			return nil, err
		}
		return parseCSV(text, -1)
	case FormatXLSX:
		return parseXLSX(data, -1)
	case FormatJSON:
		text, err := decodeText(data)
		if err != nil {
			return nil, err
		}
		return parseJSON(text, -1)
	}
	return nil, resilience.NewInputError(StageFormat, eris.Errorf("unknown format %q", format))
}

// NormalizeReader reads an upload fully and normalizes it.
func NormalizeReader(r io.Reader, format Format) (*model.LedgerRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, resilience.NewInputError(StageRead, err)
	}
	return normalizeBytes(data, format)
}

// NormalizeLocation opens an upload through f and normalizes it. An empty
// format is detected from the location and content.
func NormalizeLocation(ctx context.Context, f fetcher.Fetcher, location string, format Format) (*model.LedgerRecord, error) {
	data, format, err := ReadLocation(ctx, f, location, format)
	if err != nil {
		return nil, err
	}
	return normalizeBytes(data, format)
}

// ReadLocation loads the raw upload at location and resolves its format.
func ReadLocation(ctx context.Context, f fetcher.Fetcher, location string, format Format) ([]byte, Format, error) {
	rc, err := f.Open(ctx, location)
	if err != nil {
		return nil, "", resilience.NewInputError(StageRead, err)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", resilience.NewInputError(StageRead, eris.Wrapf(err, "read %s", location))
	}
	if format == "" {
		format = DetectFormat(location, data)
	}

	zap.L().Debug("ingest: loaded upload",
		zap.String("location", location),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
	)
	return data, format, nil
}

func normalizeBytes(data []byte, format Format) (*model.LedgerRecord, error) {
	if err := checkEmpty(data); err != nil {
		return nil, err
	}

	var (
		records []*model.LedgerRecord
		err     error
	)
	switch format {
	case FormatCSV:
		text, decErr := decodeText(data)
		if decErr != nil {
			return nil, decErr
		}
		records, err = parseCSV(text, 1)
	case FormatXLSX:
		records, err = parseXLSX(data, 1)
	case FormatJSON:
		text, decErr := decodeText(data)
		if decErr != nil {
			return nil, decErr
		}
		records, err = parseJSON(text, 1)
	default:
		return nil, resilience.NewInputError(StageFormat, eris.Errorf("unknown format %q", format))
	}
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

func checkEmpty(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return resilience.NewInputError(StageRead, eris.New("empty upload"))
	}
	return nil
}
