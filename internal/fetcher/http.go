package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	RatePerHost rate.Limit
}

// HTTPFetcher downloads uploads over HTTP(S) with a per-host rate limit.
// Transient failures are retried up to MaxAttempts.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "rentguard-cli/1.0"
	}
	if opts.RatePerHost == 0 {
		opts.RatePerHost = 5
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.RatePerHost, 1)
		f.limiters[host] = lim
	}
	return lim
}

// Open fetches rawURL and returns the response body.
func (f *HTTPFetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "http: parse url")
	}
	lim := f.limiterFor(u.Host)

	retry := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxAttempts,
		InitialBackoff: 500 * time.Millisecond,
		JitterFraction: 0.25,
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("http: download failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "http: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "http: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &resilience.TransportError{Op: "download", Err: err}
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			statusErr := eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, rawURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, &resilience.TransportError{Op: "download", Err: statusErr}
			}
			return nil, statusErr
		}
		return resp.Body, nil
	})
}
