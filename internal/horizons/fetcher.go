package horizons

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/star/ephemgo/internal/metrics"
)

// DefaultSourceURL is the JPL Horizons API endpoint.
const DefaultSourceURL = "https://ssd.jpl.nasa.gov/api/horizons.api"

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 8 << 20
)

// The report window is fixed: one day of state vectors.
const (
	startTime = "2024-02-21"
	stopTime  = "2024-02-22"
	stepSize  = "1d"
)

// ErrUpstreamUnavailable is returned for any failed upstream call, whether
// the transport failed or Horizons answered with a non-200 status.
var ErrUpstreamUnavailable = errors.New("horizons upstream unavailable")

// Cache stores raw reports by body ID. Peek looks up without refreshing
// recency or counting toward hit/miss metrics.
type Cache interface {
	Get(id int) (string, bool)
	Peek(id int) (string, bool)
	Put(id int, report string)
}

// Config holds Fetcher configuration.
type Config struct {
	SourceURL    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Fetcher retrieves raw ephemeris reports from Horizons, memoizing
// successful responses in the injected Cache.
type Fetcher struct {
	sourceURL    string
	maxBodyBytes int64
	httpClient   *http.Client
	cache        Cache
	group        singleflight.Group
	logger       *slog.Logger
}

// NewFetcher creates a Fetcher. Zero-valued Config fields take defaults.
func NewFetcher(cfg Config, cache Cache, logger *slog.Logger) *Fetcher {
	if cfg.SourceURL == "" {
		cfg.SourceURL = DefaultSourceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		sourceURL:    cfg.SourceURL,
		maxBodyBytes: cfg.MaxBodyBytes,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cache,
		logger: logger.With("component", "horizons"),
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch returns the raw report for id. A cached report is returned without
// network I/O. Failed fetches are not cached, so the next call retries the
// upstream.
//
// The upstream call does not inherit ctx's cancellation: concurrent callers
// for the same id share one call, and it is bounded by the client timeout.
func (f *Fetcher) Fetch(ctx context.Context, id int) (string, error) {
	if report, ok := f.cache.Get(id); ok {
		f.logger.Debug("report cache hit", "body_id", id)
		return report, nil
	}

	key := strconv.Itoa(id)
	v, err, shared := f.group.Do(key, func() (any, error) {
		// Another caller may have filled the cache while we waited for the group.
		if report, ok := f.cache.Peek(id); ok {
			return report, nil
		}
		report, err := f.fetch(context.WithoutCancel(ctx), id)
		if err != nil {
			return "", err
		}
		f.cache.Put(id, report)
		return report, nil
	})
	if err != nil {
		f.logger.Warn("report fetch failed", "body_id", id, "error", err)
		return "", err
	}
	if shared {
		f.logger.Debug("report fetch shared", "body_id", id)
	}
	return v.(string), nil
}

func (f *Fetcher) fetch(ctx context.Context, id int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(id), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamError, time.Since(start))
		return "", fmt.Errorf("%w: fetching body %d: %v", ErrUpstreamUnavailable, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveUpstream(metrics.UpstreamStatus, time.Since(start))
		return "", fmt.Errorf("%w: unexpected status code %d for body %d", ErrUpstreamUnavailable, resp.StatusCode, id)
	}

	// Read one byte past the limit to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamError, time.Since(start))
		return "", fmt.Errorf("%w: reading response body: %v", ErrUpstreamUnavailable, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		metrics.ObserveUpstream(metrics.UpstreamError, time.Since(start))
		return "", fmt.Errorf("%w: response exceeds %d byte limit", ErrUpstreamUnavailable, f.maxBodyBytes)
	}

	metrics.ObserveUpstream(metrics.UpstreamOK, time.Since(start))
	f.logger.Info("report fetched", "body_id", id, "bytes", len(body), "duration_ms", time.Since(start).Milliseconds())
	return string(body), nil
}

// requestURL builds the Horizons query for id over the fixed report window.
func (f *Fetcher) requestURL(id int) string {
	q := url.Values{}
	q.Set("format", "text")
	q.Set("COMMAND", "'"+strconv.Itoa(id)+"'")
	q.Set("OBJ_DATA", "YES")
	q.Set("EPHEM_TYPE", "VECTORS")
	q.Set("START_TIME", startTime)
	q.Set("STOP_TIME", stopTime)
	q.Set("STEP_SIZE", stepSize)
	return f.sourceURL + "?" + q.Encode()
}
