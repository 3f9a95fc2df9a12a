package ingest

import (
	"bytes"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// decodeText strips a UTF-8 byte order mark and converts UTF-16 uploads (as
// saved by some spreadsheet tools) to UTF-8. Invalid sequences become U+FFFD.
func decodeText(data []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), dec))
	if err != nil {
		return "", resilience.NewInputError(StageRead, eris.Wrap(err, "decode upload"))
	}
	return string(out), nil
}
