package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/config"
	"github.com/rentguard/rentguard-cli/internal/fetcher"
	"github.com/rentguard/rentguard-cli/internal/ingest"
	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/pipeline"
	"github.com/rentguard/rentguard-cli/pkg/engine"
)

// inputFlags are the ledger source flags shared by commands that evaluate
// before doing anything else.
type inputFlags struct {
	format string
	sample bool
	batch  bool
}

func addInputFlags(cmd *cobra.Command, in *inputFlags) {
	cmd.Flags().StringVar(&in.format, "format", "", "ledger format: csv, json or xlsx (default detected)")
	cmd.Flags().BoolVar(&in.sample, "sample", false, "evaluate the built-in demo ledger instead of a file")
	cmd.Flags().BoolVar(&in.batch, "batch", false, "evaluate every row instead of only the first")
}

// newSession builds a pipeline session wired from c.
func newSession(c *config.Config) (*pipeline.Session, error) {
	overrides, err := model.LoadOverrides(c.Overrides.File)
	if err != nil {
		return nil, err
	}
	return buildSession(c, overrides), nil
}

func buildSession(c *config.Config, overrides []model.OverrideRequest) *pipeline.Session {
	client := engine.NewClient(
		engine.WithBaseURL(c.Engine.BaseURL),
		engine.WithTimeout(c.Engine.Timeout()),
		engine.WithUserAgent(c.Engine.UserAgent),
	)
	f := fetcher.New(fetcher.Options{
		UserAgent:   c.Fetch.UserAgent,
		Timeout:     time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		MaxAttempts: c.Fetch.MaxAttempts,
		MaxBytes:    c.Fetch.MaxBytes,
	})

	return pipeline.NewSession(client,
		pipeline.WithFetcher(f),
		pipeline.WithRetry(c.Retry.Resilience()),
		pipeline.WithRateLimit(c.Engine.RequestsPerSecond),
		pipeline.WithCircuitBreaker(c.Engine.BreakerThreshold, c.Engine.Cooldown()),
		pipeline.WithMaxConcurrent(c.Packet.MaxConcurrent),
		pipeline.WithOverrides(overrides),
	)
}

// evaluateInputs evaluates every location into sess. With batch set every
// row of each ledger is evaluated; otherwise only the first. Failures of
// individual batch rows are logged and counted, not returned.
func evaluateInputs(ctx context.Context, sess *pipeline.Session, locations []string, in inputFlags) ([]pipeline.BatchResult, error) {
	var format ingest.Format
	if in.format != "" {
		f, err := ingest.ParseFormat(in.format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	if in.sample {
		art, err := sess.EvaluateSample(ctx)
		if err != nil {
			return nil, err
		}
		return []pipeline.BatchResult{{TenantID: art.TenantID, Artifact: art}}, nil
	}
	if len(locations) == 0 {
		return nil, eris.New("no ledger given: pass a path or URL, or --sample")
	}

	var out []pipeline.BatchResult
	for _, loc := range locations {
		if !in.batch {
			art, err := sess.EvaluateLocation(ctx, loc, format)
			if err != nil {
				return out, eris.Wrapf(err, "evaluate %s", loc)
			}
			out = append(out, pipeline.BatchResult{Index: len(out), TenantID: art.TenantID, Artifact: art})
			continue
		}

		results, err := sess.EvaluateLocationBatch(ctx, loc, format)
		if err != nil {
			return out, eris.Wrapf(err, "evaluate %s", loc)
		}
		for _, res := range results {
			if res.Err != nil {
				zap.L().Warn("evaluate: record failed",
					zap.String("location", loc),
					zap.Int("index", res.Index),
					zap.String("tenant_id", res.TenantID),
					zap.Error(res.Err),
				)
			}
			res.Index = len(out)
			out = append(out, res)
		}
	}
	return out, nil
}
