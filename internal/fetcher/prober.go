// Package fetcher probes upstream data sources for freshness. Probes
// are advisory: a source that cannot be reached yields an unknown
// result, never an error, so a flaky upstream cannot break a tracker
// run.
package fetcher

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Freshness classifies an upstream source relative to the snapshot we
// already hold of it.
type Freshness string

const (
	// FreshnessCurrent means the upstream has not changed since the
	// snapshot's publication date.
	FreshnessCurrent Freshness = "current"
	// FreshnessStale means the upstream was modified after the
	// snapshot's publication date.
	FreshnessStale Freshness = "stale"
	// FreshnessUnknown means the source could not be probed or gave no
	// usable modification date.
	FreshnessUnknown Freshness = "unknown"
)

// ProbeOptions configures the origin prober.
type ProbeOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RatePerSec float64
	Burst      int
}

// Prober issues rate-limited HEAD requests against origin URLs.
type Prober struct {
	client  *http.Client
	opts    ProbeOptions
	limiter *AdaptiveLimiter
	log     *zap.Logger
}

// NewProber creates a Prober with the given options.
func NewProber(opts ProbeOptions) *Prober {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "etl-cli/1.0"
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 5
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Prober{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		log:     zap.L().With(zap.String("component", "fetcher")),
	}
}

// Probe issues a HEAD request and compares the Last-Modified header to
// the snapshot's publication date.
func (p *Prober) Probe(ctx context.Context, rawURL string, publishedAt time.Time) Freshness {
	resp, err := p.headWithRetry(ctx, rawURL)
	if err != nil {
		p.log.Warn("origin probe failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return FreshnessUnknown
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("origin probe got non-200 status",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
		)
		return FreshnessUnknown
	}

	lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		return FreshnessUnknown
	}
	if lastModified.After(publishedAt) {
		return FreshnessStale
	}
	return FreshnessCurrent
}

func (p *Prober) headWithRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := range p.opts.MaxRetries {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", p.opts.UserAgent)

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			p.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = &statusError{url: rawURL, status: resp.StatusCode}
			p.limiter.OnRateLimit()
			p.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = &statusError{url: rawURL, status: resp.StatusCode}
			p.backoff(ctx, attempt)
			continue
		}

		p.limiter.OnSuccess()
		return resp, nil
	}
	return nil, lastErr
}

func (p *Prober) backoff(ctx context.Context, attempt int) {
	base := 250 * time.Millisecond
	maxBackoff := 10 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d) / 2))
	d = d + jitter

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.status, e.url)
}
