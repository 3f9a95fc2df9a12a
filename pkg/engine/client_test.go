package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

func TestEvaluate_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/evaluate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "rentguard-test", r.Header.Get("User-Agent"))

		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "RG-DEMO-001", got["tenant_id"])
		assert.Equal(t, 120.75, got["balance"])
		assert.Equal(t, true, got["no_notice_sent"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"artifact_id":"a-1","tenant_id":"RG-DEMO-001","status":"NOTICE_REQUIRED",
			"action":"SEND_NOTICE","timestamp":"2024-05-02T10:00:00Z","rule_version":"v3"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL+"/api/"), WithUserAgent("rentguard-test"))
	art, err := client.Evaluate(context.Background(), model.SampleLedger())

	require.NoError(t, err)
	assert.Equal(t, "a-1", art.ArtifactID)
	assert.Equal(t, "SEND_NOTICE", art.Action)
	assert.Equal(t, "v3", art.Extra["rule_version"])
}

func TestEvaluate_SingleAttemptOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Evaluate(context.Background(), model.SampleLedger())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, MsgEvaluationFailed, err.Error())

	var engineErr *resilience.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, http.StatusServiceUnavailable, engineErr.StatusCode)
	assert.True(t, resilience.IsTransient(err))
}

func TestEvaluate_ErrorDetail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Evaluation did not produce an artifact"}`, "Evaluation did not produce an artifact"},
		{"validation list", `{"detail":[{"loc":["body","balance"],"msg":"field required"},{"msg":"bad date"}]}`, "field required; bad date"},
		{"empty detail", `{"detail":""}`, MsgEvaluationFailed},
		{"no detail", `{"error":"nope"}`, MsgEvaluationFailed},
		{"not json", `<html>502</html>`, MsgEvaluationFailed},
		{"empty body", ``, MsgEvaluationFailed},
		{"numeric detail", `{"detail":42}`, MsgEvaluationFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).Evaluate(context.Background(), model.SampleLedger())
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Equal(t, resilience.KindEngine, resilience.KindOf(err))
		})
	}
}

func TestEvaluate_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(WithBaseURL(url)).Evaluate(context.Background(), model.SampleLedger())
	require.Error(t, err)
	assert.Equal(t, resilience.KindTransport, resilience.KindOf(err))

	var transErr *resilience.TransportError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, transErr.Err.Error(), err.Error())
}

func TestEvaluate_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond)).
		Evaluate(context.Background(), model.SampleLedger())
	require.Error(t, err)
	assert.Equal(t, resilience.KindTransport, resilience.KindOf(err))
}

func TestEvaluate_NilRecord(t *testing.T) {
	t.Parallel()

	_, err := NewClient().Evaluate(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, resilience.KindInput, resilience.KindOf(err))
}

func TestEvaluate_MalformedArtifact(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Evaluate(context.Background(), model.SampleLedger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode artifact")
}

func TestJudgePacket_Success(t *testing.T) {
	t.Parallel()

	zip := []byte("PK\x03\x04fake-archive")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/judge-packet", r.URL.Path)
		assert.Equal(t, "application/zip", r.Header.Get("Accept"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var got struct {
			TenantID  string           `json:"tenant_id"`
			Artifacts []map[string]any `json:"artifacts"`
		}
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "T-1", got.TenantID)
		require.Len(t, got.Artifacts, 2)
		assert.Equal(t, "opaque", got.Artifacts[0]["custom"])

		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(zip)
	}))
	defer srv.Close()

	arts := []model.Artifact{
		{ArtifactID: "a-2", TenantID: "T-1", Extra: map[string]any{"custom": "opaque"}},
		{ArtifactID: "a-1", TenantID: "T-1"},
	}
	data, err := NewClient(WithBaseURL(srv.URL)).JudgePacket(context.Background(), PacketRequest{TenantID: "T-1", Artifacts: arts})
	require.NoError(t, err)
	assert.Equal(t, zip, data)
}

func TestJudgePacket_ErrorDetail(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"At least one artifact is required"}`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).JudgePacket(context.Background(), PacketRequest{TenantID: "T-1"})
	require.Error(t, err)
	assert.Equal(t, "At least one artifact is required", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestJudgePacket_GenericMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).JudgePacket(context.Background(), PacketRequest{TenantID: "T-1"})
	require.Error(t, err)
	assert.Equal(t, MsgPacketFailed, err.Error())
	assert.False(t, resilience.IsTransient(err))
}

func TestParseDetail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boom", parseDetail([]byte(`{"detail":"boom"}`), "x"))
	assert.Equal(t, "x", parseDetail([]byte(`{"detail":null}`), "x"))
	assert.Equal(t, "x", parseDetail([]byte(`{"detail":[{"loc":["a"]}]}`), "x"))
}
