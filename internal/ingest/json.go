package ingest

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// parseJSON decodes a single object, or an array of objects of which up to
// limit are used (limit < 0 uses all). Field presence is not checked here;
// the engine validates JSON submissions.
func parseJSON(text string, limit int) ([]*model.LedgerRecord, error) {
	trimmed := strings.TrimSpace(text)

	var items []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, resilience.NewInputError(StageJSON, eris.Wrap(err, "decode array"))
		}
		if len(items) == 0 {
			return nil, resilience.NewInputError(StageJSON, eris.New("json array contained no records"))
		}
		if limit >= 0 && len(items) > limit {
			items = items[:limit]
		}
	} else {
		if !json.Valid([]byte(trimmed)) {
			var scratch any
			err := json.Unmarshal([]byte(trimmed), &scratch)
			return nil, resilience.NewInputError(StageJSON, eris.Wrap(err, "decode object"))
		}
		items = []json.RawMessage{json.RawMessage(trimmed)}
	}

	records := make([]*model.LedgerRecord, 0, len(items))
	for i, item := range items {
		var rec model.LedgerRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			if eris.Is(err, model.ErrBalanceNotNumber) {
				return nil, resilience.NewInputError(StageBalance, eris.Wrapf(err, "record %d", i))
			}
			return nil, resilience.NewInputError(StageJSON, eris.Wrapf(err, "record %d is not an object", i))
		}
		records = append(records, &rec)
	}
	return records, nil
}
