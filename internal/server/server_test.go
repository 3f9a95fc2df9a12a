package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/pipeline"
	"github.com/rentguard/rentguard-cli/internal/resilience"
	"github.com/rentguard/rentguard-cli/pkg/engine"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Evaluate(ctx context.Context, rec *model.LedgerRecord) (*model.Artifact, error) {
	args := m.Called(ctx, rec)
	if fn, ok := args.Get(0).(func(*model.LedgerRecord) *model.Artifact); ok {
		return fn(rec), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *mockEngine) JudgePacket(ctx context.Context, req engine.PacketRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func echoArtifact(rec *model.LedgerRecord) *model.Artifact {
	return &model.Artifact{
		ArtifactID: "a-" + rec.TenantID,
		TenantID:   rec.TenantID,
		Status:     "NOTICE_REQUIRED",
		Action:     "SEND_NOTICE",
		Timestamp:  "2024-05-02T10:00:00Z",
	}
}

func newTestServer(t *testing.T, eng *mockEngine) (*Server, *httptest.Server) {
	t.Helper()
	s := New(func() *pipeline.Session { return pipeline.NewSession(eng) }, Options{
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.SessionID)
	return body.SessionID
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, &mockEngine{})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s, ts := newTestServer(t, &mockEngine{})
	id := createSession(t, ts)
	assert.Equal(t, 1, s.SessionCount())

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, s.SessionCount())

	resp, err = http.Get(ts.URL + "/sessions/" + id + "/artifacts")
	require.NoError(t, err)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["detail"], "not found")
}

func TestEvaluateUploadAndList(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	eng.On("Evaluate", mock.Anything, mock.Anything).Return(echoArtifact, nil)

	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	for _, tenant := range []string{"T-1", "T-2"} {
		csv := "tenant_id,due_date,balance\n" + tenant + ",2024-05-01,10\n"
		resp, err := http.Post(ts.URL+"/sessions/"+id+"/evaluate/upload?format=csv", "text/csv", strings.NewReader(csv))
		require.NoError(t, err)
		var art map[string]any
		decode(t, resp, &art)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "a-"+tenant, art["artifact_id"])
	}

	resp, err := http.Get(ts.URL + "/sessions/" + id + "/artifacts")
	require.NoError(t, err)
	var list struct {
		Artifacts []model.Artifact `json:"artifacts"`
	}
	decode(t, resp, &list)
	require.Len(t, list.Artifacts, 2)
	assert.Equal(t, "a-T-2", list.Artifacts[0].ArtifactID)

	resp, err = http.Get(ts.URL + "/sessions/" + id + "/artifacts?tenant_id=T-1")
	require.NoError(t, err)
	decode(t, resp, &list)
	require.Len(t, list.Artifacts, 1)
	assert.Equal(t, "T-1", list.Artifacts[0].TenantID)
}

func TestEvaluateUpload_InputErrorIs400(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/sessions/"+id+"/evaluate/upload?format=csv", "text/csv",
		strings.NewReader("tenant_id,balance\nT-1,5\n"))
	require.NoError(t, err)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["detail"], `missing column "due_date"`)
	eng.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)

	resp, err = http.Post(ts.URL+"/sessions/"+id+"/evaluate/upload?format=toml", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvaluateJSON_EngineErrorIs502(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	eng.On("Evaluate", mock.Anything, mock.Anything).
		Return(nil, &resilience.EngineError{Op: "evaluate", StatusCode: 400, Detail: "Evaluation did not produce an artifact"})

	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/sessions/"+id+"/evaluate", "application/json",
		strings.NewReader(`{"tenant_id":"T-1","due_date":"2024-05-01","balance":5}`))
	require.NoError(t, err)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Evaluation did not produce an artifact", body["detail"])
}

func TestEvaluateBatch(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	eng.On("Evaluate", mock.Anything, mock.Anything).Return(echoArtifact, nil)

	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	csv := "tenant_id,due_date,balance\nT-1,2024-05-01,1\nT-2,2024-05-01,2\nT-3,2024-05-01,3\n"
	resp, err := http.Post(ts.URL+"/sessions/"+id+"/evaluate/batch?filename=ledger.csv", "text/csv", strings.NewReader(csv))
	require.NoError(t, err)

	var body struct {
		Results []batchItem `json:"results"`
		Failed  int         `json:"failed"`
	}
	decode(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Results, 3)
	assert.Equal(t, 0, body.Failed)
	assert.Equal(t, "T-3", body.Results[2].TenantID)
}

func TestToggleAndReset(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, &mockEngine{})
	id := createSession(t, ts)

	toggle := func() bool {
		resp, err := http.Post(ts.URL+"/sessions/"+id+"/artifacts/a-1/toggle", "application/json", nil)
		require.NoError(t, err)
		var body struct {
			Expanded bool `json:"expanded"`
		}
		decode(t, resp, &body)
		return body.Expanded
	}
	assert.True(t, toggle())
	assert.False(t, toggle())
	assert.True(t, toggle())

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+id+"/expansion", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/sessions/" + id + "/expansion")
	require.NoError(t, err)
	var state struct {
		Expanded map[string]bool `json:"expanded"`
	}
	decode(t, resp, &state)
	assert.Empty(t, state.Expanded)
}

func TestTrends_FallbackThenLive(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	eng.On("Evaluate", mock.Anything, mock.Anything).Return(echoArtifact, nil)
	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	type trendsBody struct {
		Points  []model.TrendPoint `json:"points"`
		Summary model.TrendSummary `json:"summary"`
		Live    bool               `json:"live"`
	}

	resp, err := http.Get(ts.URL + "/sessions/" + id + "/trends")
	require.NoError(t, err)
	var body trendsBody
	decode(t, resp, &body)
	assert.False(t, body.Live)
	require.Len(t, body.Points, 4)
	assert.Equal(t, 18.5, body.Points[0].EnforcementRate)

	resp, err = http.Post(ts.URL+"/sessions/"+id+"/evaluate/sample", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/sessions/" + id + "/trends")
	require.NoError(t, err)
	body = trendsBody{}
	decode(t, resp, &body)
	assert.True(t, body.Live)
	require.Len(t, body.Points, 1)
	assert.Equal(t, "May 2024", body.Points[0].Period)
	assert.Equal(t, 100.0, body.Summary.LatestRate)
}

func TestExportArtifact(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	eng.On("Evaluate", mock.Anything, mock.Anything).Return(echoArtifact, nil)
	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/sessions/"+id+"/evaluate/sample", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/sessions/" + id + "/artifacts/a-RG-DEMO-001/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "artifact_SEND_NOTICE.json")

	resp2, err := http.Get(ts.URL + "/sessions/" + id + "/artifacts/missing/export")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestPacket(t *testing.T) {
	t.Parallel()

	eng := &mockEngine{}
	eng.On("Evaluate", mock.Anything, mock.Anything).Return(echoArtifact, nil)
	eng.On("JudgePacket", mock.Anything, mock.MatchedBy(func(req engine.PacketRequest) bool {
		return req.TenantID == "RG-DEMO-001"
	})).Return([]byte("PK-zip"), nil)

	_, ts := newTestServer(t, eng)
	id := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/sessions/"+id+"/packet", "application/json", nil)
	require.NoError(t, err)
	var detail map[string]string
	decode(t, resp, &detail)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, pipeline.MsgNoArtifacts, detail["detail"])

	resp, err = http.Post(ts.URL+"/sessions/"+id+"/evaluate/sample", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/sessions/"+id+"/packet", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `"RG-DEMO-001.zip"`)
	assert.Equal(t, []byte("PK-zip"), data)
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, &mockEngine{})
	resp, err := http.Get(ts.URL + "/overrides")
	require.NoError(t, err)
	var body struct {
		Overrides []model.OverrideRequest `json:"overrides"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Overrides, len(model.DefaultOverrides))
	assert.Equal(t, "OVR-1048", body.Overrides[0].ID)

	id := createSession(t, ts)
	resp, err = http.Post(ts.URL+"/sessions/"+id+"/overrides/OVR-1048/packet", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, &mockEngine{})
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
