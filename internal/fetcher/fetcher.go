// Package fetcher opens ledger uploads from local files, HTTP(S) and FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultMaxBytes caps how much of an upload is read.
const DefaultMaxBytes int64 = 10 << 20

// Fetcher opens a ledger upload by location.
type Fetcher interface {
	// Open returns the upload body. The caller must close it.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Options configures a Router.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	// RatePerHost limits remote requests per host per second (0 = 5).
	RatePerHost rate.Limit
	// MaxBytes caps the bytes read from any source (0 = DefaultMaxBytes).
	MaxBytes int64
}

// Router dispatches a location to the fetcher for its scheme. Plain paths and
// file:// URLs are read from disk.
type Router struct {
	http     *HTTPFetcher
	ftp      *FTPFetcher
	maxBytes int64
}

// New creates a Router with HTTP and FTP support.
func New(opts Options) *Router {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Router{
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:   opts.UserAgent,
			Timeout:     opts.Timeout,
			MaxAttempts: opts.MaxAttempts,
			RatePerHost: opts.RatePerHost,
		}),
		ftp:      NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
		maxBytes: opts.MaxBytes,
	}
}

// Open implements Fetcher.
func (r *Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch Scheme(location) {
	case "http", "https":
		rc, err = r.http.Open(ctx, location)
	case "ftp":
		rc, err = r.ftp.Open(ctx, location)
	case "file":
		u, parseErr := url.Parse(location)
		if parseErr != nil {
			return nil, eris.Wrap(parseErr, "fetcher: parse file url")
		}
		rc, err = openFile(u.Path)
	case "":
		rc, err = openFile(location)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme in %q", location)
	}
	if err != nil {
		return nil, err
	}
	return &limitedReadCloser{Reader: io.LimitReader(rc, r.maxBytes), closer: rc}, nil
}

// Scheme returns the lower-cased URL scheme of location, or "" for a plain
// filesystem path.
func Scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}
