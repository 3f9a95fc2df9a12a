// Package pipeline connects normalized ledger records to the decision engine
// and the session artifact store.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
	"github.com/rentguard/rentguard-cli/internal/store"
	"github.com/rentguard/rentguard-cli/pkg/engine"
)

// Dispatcher sends one ledger record per call to the engine and records the
// returned artifact. It never retries.
type Dispatcher struct {
	engine  engine.Client
	store   store.Store
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewDispatcher creates a Dispatcher that records into st. A nil limiter
// leaves calls unthrottled.
func NewDispatcher(client engine.Client, st store.Store, limiter *rate.Limiter) *Dispatcher {
	return &Dispatcher{engine: client, store: st, limiter: limiter}
}

// Dispatch evaluates rec. On success exactly one artifact is prepended to the
// store and returned; on failure the store is unchanged. Records missing a
// required field fail with an InputError before any request is made.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *model.LedgerRecord) (*model.Artifact, error) {
	if rec == nil {
		return nil, resilience.NewInputError("record", eris.New("no ledger record"))
	}
	if field := rec.MissingField(); field != "" {
		return nil, resilience.NewInputError("record", eris.Errorf("missing required field %q", field))
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, &resilience.TransportError{Op: "evaluate", Err: eris.Wrap(err, "dispatch: rate limit wait")}
		}
	}

	if err := d.breaker.Allow(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("tenant_id", rec.TenantID))
	art, err := d.engine.Evaluate(ctx, rec)
	d.breaker.Record(err)
	if err != nil {
		log.Warn("dispatch: evaluation failed",
			zap.String("kind", string(resilience.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	d.store.Record(*art)
	log.Info("dispatch: artifact recorded",
		zap.String("artifact_id", art.ArtifactID),
		zap.String("status", art.Status),
		zap.String("action", art.Action),
	)
	return art, nil
}
