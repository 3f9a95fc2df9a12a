// Package engine provides a client for the remote compliance decision engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// DefaultBaseURL is the engine address used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// Generic messages surfaced when an error response carries no usable detail.
const (
	MsgEvaluationFailed = "evaluation failed"
	MsgPacketFailed     = "unable to generate judge packet"
)

// Client defines the decision engine operations. Every call makes exactly one
// network attempt.
type Client interface {
	// Evaluate submits one ledger record and returns the engine's artifact.
	Evaluate(ctx context.Context, rec *model.LedgerRecord) (*model.Artifact, error)
	// JudgePacket requests the bundled archive for a tenant's artifacts.
	JudgePacket(ctx context.Context, req PacketRequest) ([]byte, error)
}

// PacketRequest is the judge packet request body.
type PacketRequest struct {
	TenantID  string           `json:"tenant_id"`
	Artifacts []model.Artifact `json:"artifacts"`
}

// Option configures the engine client.
type Option func(*httpClient)

// WithBaseURL sets the engine base address.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a decision engine client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   DefaultBaseURL,
		userAgent: "rentguard-cli/1.0",
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Evaluate(ctx context.Context, rec *model.LedgerRecord) (*model.Artifact, error) {
	if rec == nil {
		return nil, resilience.NewInputError("record", eris.New("no ledger record"))
	}

	body, status, err := c.post(ctx, "evaluate", "/evaluate", "application/json", rec)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &resilience.EngineError{
			Op:         "evaluate",
			StatusCode: status,
			Detail:     parseDetail(body, MsgEvaluationFailed),
		}
	}

	var art model.Artifact
	if err := json.Unmarshal(body, &art); err != nil {
		return nil, eris.Wrap(err, "engine: decode artifact")
	}
	return &art, nil
}

func (c *httpClient) JudgePacket(ctx context.Context, req PacketRequest) ([]byte, error) {
	if req.Artifacts == nil {
		req.Artifacts = []model.Artifact{}
	}

	body, status, err := c.post(ctx, "judge_packet", "/judge-packet", "application/zip", req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &resilience.EngineError{
			Op:         "judge_packet",
			StatusCode: status,
			Detail:     parseDetail(body, MsgPacketFailed),
		}
	}
	return body, nil
}

// post sends payload as JSON and returns the raw response body and status.
// Failures to reach the engine or read its reply are TransportErrors.
func (c *httpClient) post(ctx context.Context, op, path, accept string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "engine: %s: encode request", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, eris.Wrapf(err, "engine: %s: create request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &resilience.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &resilience.TransportError{Op: op, Err: err}
	}
	return body, resp.StatusCode, nil
}

// parseDetail extracts the message from a {"detail": ...} error body. A
// string detail is used as is; a list of validation entries is joined by
// their "msg" fields. Anything else yields fallback.
func parseDetail(body []byte, fallback string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return fallback
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return fallback
		}
		return s
	}

	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Msg != "" {
				msgs = append(msgs, e.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return fallback
}
