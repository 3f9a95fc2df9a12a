package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/rentguard/rentguard-cli/internal/ingest"
	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/pipeline"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// handleEvaluateJSON takes a ledger record as a JSON body.
func (s *Server) handleEvaluateJSON(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := s.readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	art, err := sess.EvaluateRaw(r.Context(), string(data), ingest.FormatJSON)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

// handleEvaluateUpload takes a raw ledger upload. The format comes from the
// "format" query parameter, else it is sniffed from the body.
func (s *Server) handleEvaluateUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, format, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	art, err := sess.EvaluateRaw(r.Context(), string(data), format)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

type batchItem struct {
	Index    int             `json:"index"`
	TenantID string          `json:"tenant_id,omitempty"`
	Artifact *model.Artifact `json:"artifact,omitempty"`
	Error    string          `json:"error,omitempty"`
	Kind     string          `json:"kind,omitempty"`
}

// handleEvaluateBatch evaluates every row of an upload.
func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, format, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := ingest.NormalizeAll(string(data), format)
	if err != nil {
		writeError(w, err)
		return
	}

	results := sess.EvaluateBatch(r.Context(), recs)
	items := make([]batchItem, len(results))
	failed := 0
	for i, res := range results {
		items[i] = batchItem{Index: res.Index, TenantID: res.TenantID, Artifact: res.Artifact}
		if res.Err != nil {
			failed++
			items[i].Error = res.Err.Error()
			items[i].Kind = string(resilience.KindOf(res.Err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items, "failed": failed})
}

func (s *Server) handleEvaluateSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	art, err := sess.EvaluateSample(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, ingest.Format, error) {
	data, err := s.readBody(w, r)
	if err != nil {
		return nil, "", err
	}
	if f := r.URL.Query().Get("format"); f != "" {
		format, err := ingest.ParseFormat(f)
		if err != nil {
			return nil, "", err
		}
		return data, format, nil
	}
	return data, ingest.DetectFormat(r.URL.Query().Get("filename"), data), nil
}

// handleListArtifacts returns the store newest first, optionally filtered by
// the tenant_id query parameter, with each artifact's expansion state.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var arts []model.Artifact
	if tenant := r.URL.Query().Get("tenant_id"); tenant != "" {
		arts = sess.ArtifactsForTenant(tenant)
	} else {
		arts = sess.Artifacts()
	}
	if arts == nil {
		arts = []model.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": arts,
		"expanded":  sess.ExpansionState(),
	})
}

// handleExportArtifact downloads the most recent artifact with the id.
func (s *Server) handleExportArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "artifact_id")
	for _, art := range sess.Artifacts() {
		if art.ArtifactID != id {
			continue
		}
		data, name, err := pipeline.ExportArtifact(art)
		if err != nil {
			writeError(w, err)
			return
		}
		writeAttachment(w, "application/json", name, data)
		return
	}
	writeDetail(w, http.StatusNotFound, "artifact "+id+" not found")
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "artifact_id")
	writeJSON(w, http.StatusOK, map[string]any{"artifact_id": id, "expanded": sess.Toggle(id)})
}

func (s *Server) handleExpansion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expanded": sess.ExpansionState()})
}

func (s *Server) handleResetExpansion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.ResetExpansion()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	points := sess.Trends()
	writeJSON(w, http.StatusOK, map[string]any{
		"points":  points,
		"summary": sess.Summary(),
		"live":    len(sess.Artifacts()) > 0,
	})
}

type packetBody struct {
	TenantID  string           `json:"tenant_id"`
	Artifacts []model.Artifact `json:"artifacts"`
}

// handlePacket assembles a judge packet. An empty body means "whole store,
// first artifact's tenant".
func (s *Server) handlePacket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := s.readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body packetBody
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			writeError(w, resilience.NewInputError(ingest.StageJSON, eris.Wrap(err, "decode packet request")))
			return
		}
	}

	pkt, err := sess.AssemblePacket(r.Context(), body.TenantID, body.Artifacts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, "application/zip", pkt.Filename, pkt.Data)
}

func (s *Server) handleOverridePacket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	pkt, err := sess.AssembleForOverride(r.Context(), chi.URLParam(r, "override_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, "application/zip", pkt.Filename, pkt.Data)
}
