package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rentguard/rentguard-cli/internal/fetcher"
	"github.com/rentguard/rentguard-cli/internal/ingest"
	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
	"github.com/rentguard/rentguard-cli/internal/store"
	"github.com/rentguard/rentguard-cli/internal/trend"
	"github.com/rentguard/rentguard-cli/pkg/engine"
)

// Session owns one user's artifact store and expansion state and the
// operations that act on them. Sessions share nothing with each other.
type Session struct {
	ID        string
	CreatedAt time.Time

	store      *store.Memory
	expansion  *store.Expansion
	dispatcher *Dispatcher
	packets    *PacketTrigger

	fetcher       fetcher.Fetcher
	retry         resilience.RetryConfig
	maxConcurrent int
	overrides     []model.OverrideRequest
}

// SessionOption configures a Session.
type SessionOption func(*sessionOpts)

type sessionOpts struct {
	fetcher       fetcher.Fetcher
	retry         resilience.RetryConfig
	ratePerSecond float64
	breaker       *resilience.CircuitBreaker
	maxConcurrent int
	overrides     []model.OverrideRequest
}

// WithFetcher sets how EvaluateLocation opens uploads.
func WithFetcher(f fetcher.Fetcher) SessionOption {
	return func(o *sessionOpts) { o.fetcher = f }
}

// WithRetry sets caller-side retry around each evaluation.
func WithRetry(cfg resilience.RetryConfig) SessionOption {
	return func(o *sessionOpts) { o.retry = cfg }
}

// WithRateLimit throttles engine evaluations to rps per second (0 = none).
func WithRateLimit(rps float64) SessionOption {
	return func(o *sessionOpts) { o.ratePerSecond = rps }
}

// WithCircuitBreaker stops calling the engine after threshold consecutive
// transport failures, trying again after cooldown. Zero disables it.
func WithCircuitBreaker(threshold int, cooldown time.Duration) SessionOption {
	return func(o *sessionOpts) {
		o.breaker = resilience.NewCircuitBreaker("evaluate", threshold, cooldown)
	}
}

// WithMaxConcurrent bounds batch and cohort fan-out.
func WithMaxConcurrent(n int) SessionOption {
	return func(o *sessionOpts) { o.maxConcurrent = n }
}

// WithOverrides sets the override queue used by AssembleForOverride.
func WithOverrides(queue []model.OverrideRequest) SessionOption {
	return func(o *sessionOpts) { o.overrides = queue }
}

// NewSession starts an empty session against client.
func NewSession(client engine.Client, opts ...SessionOption) *Session {
	o := sessionOpts{maxConcurrent: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = fetcher.New(fetcher.Options{})
	}
	if o.maxConcurrent <= 0 {
		o.maxConcurrent = 1
	}
	if o.overrides == nil {
		o.overrides = append([]model.OverrideRequest(nil), model.DefaultOverrides...)
	}

	var limiter *rate.Limiter
	if o.ratePerSecond > 0 {
		burst := int(o.ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(o.ratePerSecond), burst)
	}

	st := store.NewMemory()
	dispatcher := NewDispatcher(client, st, limiter)
	dispatcher.breaker = o.breaker
	s := &Session{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		store:         st,
		expansion:     store.NewExpansion(),
		dispatcher:    dispatcher,
		packets:       NewPacketTrigger(client, st),
		fetcher:       o.fetcher,
		retry:         o.retry,
		maxConcurrent: o.maxConcurrent,
		overrides:     o.overrides,
	}
	zap.L().Debug("session: started", zap.String("session_id", s.ID))
	return s
}

// Evaluate dispatches rec, retrying transient failures per the session's
// retry config. Each attempt is a single engine request.
func (s *Session) Evaluate(ctx context.Context, rec *model.LedgerRecord) (*model.Artifact, error) {
	cfg := s.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("evaluate")
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.Artifact, error) {
		return s.dispatcher.Dispatch(ctx, rec)
	})
}

// EvaluateRaw normalizes a pasted or uploaded ledger and evaluates it.
func (s *Session) EvaluateRaw(ctx context.Context, raw string, format ingest.Format) (*model.Artifact, error) {
	rec, err := ingest.Normalize(raw, format)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, rec)
}

// EvaluateLocation loads a ledger from a path or URL and evaluates it. An
// empty format is detected from the location.
func (s *Session) EvaluateLocation(ctx context.Context, location string, format ingest.Format) (*model.Artifact, error) {
	rec, err := ingest.NormalizeLocation(ctx, s.fetcher, location, format)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, rec)
}

// EvaluateLocationBatch loads a ledger from a path or URL and evaluates every
// row of it.
func (s *Session) EvaluateLocationBatch(ctx context.Context, location string, format ingest.Format) ([]BatchResult, error) {
	data, detected, err := ingest.ReadLocation(ctx, s.fetcher, location, format)
	if err != nil {
		return nil, err
	}
	recs, err := ingest.NormalizeAll(string(data), detected)
	if err != nil {
		return nil, err
	}
	return s.EvaluateBatch(ctx, recs), nil
}

// EvaluateSample evaluates the built-in demo ledger.
func (s *Session) EvaluateSample(ctx context.Context) (*model.Artifact, error) {
	return s.Evaluate(ctx, model.SampleLedger())
}

// BatchResult is the outcome for one record of a batch.
type BatchResult struct {
	Index    int
	TenantID string
	Record   *model.LedgerRecord
	Artifact *model.Artifact
	Err      error
}

// EvaluateBatch evaluates recs with bounded concurrency. A failed record does
// not stop the others. Results are in input order; the store receives
// artifacts in completion order.
func (s *Session) EvaluateBatch(ctx context.Context, recs []*model.LedgerRecord) []BatchResult {
	results := make([]BatchResult, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, rec := range recs {
		i, rec := i, rec
		results[i] = BatchResult{Index: i, Record: rec}
		if rec != nil {
			results[i].TenantID = rec.TenantID
		}
		g.Go(func() error {
			art, err := s.Evaluate(gctx, rec)
			results[i].Artifact = art
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	zap.L().Info("session: batch complete",
		zap.String("session_id", s.ID),
		zap.Int("records", len(recs)),
		zap.Int("failed", failed),
	)
	return results
}

// DeadLetters returns the failed results of a batch as dead letters.
func DeadLetters(results []BatchResult, at time.Time) []resilience.DeadLetter {
	var out []resilience.DeadLetter
	for _, r := range results {
		if r.Err != nil {
			out = append(out, resilience.NewDeadLetter(r.Index, r.Record, r.Err, at))
		}
	}
	return out
}

// Artifacts returns the session's artifacts, newest first.
func (s *Session) Artifacts() []model.Artifact {
	return s.store.All()
}

// ArtifactsForTenant returns one tenant's artifacts, newest first.
func (s *Session) ArtifactsForTenant(tenantID string) []model.Artifact {
	return s.store.FilterByTenant(tenantID)
}

// Toggle flips the detail expansion for an artifact id.
func (s *Session) Toggle(artifactID string) bool {
	return s.expansion.Toggle(artifactID)
}

// Expanded reports whether an artifact's details are shown.
func (s *Session) Expanded(artifactID string) bool {
	return s.expansion.Expanded(artifactID)
}

// ResetExpansion collapses every artifact.
func (s *Session) ResetExpansion() {
	s.expansion.ResetAll()
}

// ExpansionState returns a copy of the expansion map.
func (s *Session) ExpansionState() map[string]bool {
	return s.expansion.Snapshot()
}

// Trends computes the monthly series from the current store.
func (s *Session) Trends() []model.TrendPoint {
	return trend.Monthly(s.store.All())
}

// Summary condenses Trends.
func (s *Session) Summary() model.TrendSummary {
	return trend.Summarize(s.Trends())
}

// AssemblePacket builds a judge packet for tenantID from arts, with the
// fallbacks described on PacketTrigger.Assemble.
func (s *Session) AssemblePacket(ctx context.Context, tenantID string, arts []model.Artifact) (*Packet, error) {
	return s.packets.Assemble(ctx, PacketRequest{TenantID: tenantID, Artifacts: arts})
}

// Overrides returns the session's override queue.
func (s *Session) Overrides() []model.OverrideRequest {
	out := make([]model.OverrideRequest, len(s.overrides))
	copy(out, s.overrides)
	return out
}

// AssembleForOverride builds the packet for the tenant named by an override
// request, limited to that tenant's artifacts. An empty id selects the first
// queued request.
func (s *Session) AssembleForOverride(ctx context.Context, overrideID string) (*Packet, error) {
	req, ok := model.FindOverride(s.overrides, overrideID)
	if !ok {
		return nil, &resilience.PreconditionError{Reason: "override " + overrideID + " not found"}
	}

	zap.L().Info("session: packet for override",
		zap.String("override_id", req.ID),
		zap.String("tenant_id", req.TenantID),
		zap.String("status", string(req.Status)),
	)
	return s.AssembleForTenant(ctx, req.TenantID)
}

// AssembleForTenant builds the packet for tenantID from that tenant's
// artifacts only. It fails with a precondition error when the tenant has none,
// rather than falling back to the whole store. An empty tenantID assembles
// from every artifact, taking the tenant of the newest one.
func (s *Session) AssembleForTenant(ctx context.Context, tenantID string) (*Packet, error) {
	if tenantID == "" {
		return s.AssemblePacket(ctx, "", s.store.All())
	}
	arts := s.store.FilterByTenant(tenantID)
	if len(arts) == 0 {
		return nil, &resilience.PreconditionError{Reason: "no artifacts recorded for tenant " + tenantID}
	}
	return s.AssemblePacket(ctx, tenantID, arts)
}

// CohortResult is the outcome for one tenant of a cohort assembly.
type CohortResult struct {
	TenantID string
	Packet   *Packet
	Err      error
}

// AssembleCohort builds one packet per tenant with bounded concurrency. With
// no tenants given it uses every tenant present in the store. Results are
// sorted by tenant id.
func (s *Session) AssembleCohort(ctx context.Context, tenantIDs []string) ([]CohortResult, error) {
	if len(tenantIDs) == 0 {
		tenantIDs = s.tenants()
	}
	if len(tenantIDs) == 0 {
		return nil, &resilience.PreconditionError{Reason: MsgNoArtifacts}
	}

	results := make([]CohortResult, len(tenantIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, tenant := range tenantIDs {
		i, tenant := i, tenant
		results[i].TenantID = tenant
		g.Go(func() error {
			pkt, err := s.AssembleForTenant(gctx, tenant)
			results[i].Packet = pkt
			results[i].Err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "session: assemble cohort")
	}

	sort.Slice(results, func(a, b int) bool { return results[a].TenantID < results[b].TenantID })
	return results, nil
}

func (s *Session) tenants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, art := range s.store.All() {
		if art.TenantID != "" && !seen[art.TenantID] {
			seen[art.TenantID] = true
			out = append(out, art.TenantID)
		}
	}
	sort.Strings(out)
	return out
}
