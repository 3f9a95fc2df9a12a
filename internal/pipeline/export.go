package pipeline

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/rentguard/rentguard-cli/internal/model"
)

// ExportArtifact renders art as indented JSON for download, with every
// pass-through field intact, and suggests a filename of
// "artifact_<action>.json" (or the artifact id when there is no action).
func ExportArtifact(art model.Artifact) ([]byte, string, error) {
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return nil, "", eris.Wrap(err, "export: encode artifact")
	}
	return data, ExportFilename(art), nil
}

// ExportFilename is the suggested download name for art.
func ExportFilename(art model.Artifact) string {
	key := art.Action
	if key == "" {
		key = art.ArtifactID
	}
	if key == "" {
		return "artifact.json"
	}
	return safeFilename("artifact_" + key + ".json")
}
