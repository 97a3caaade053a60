// Package fetch implements the resilient HTTP layer used by every scraper
// and enricher: retries with jittered backoff, per-host rate limiting, and
// rotating client identities. It knows nothing about lead semantics.
package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/metrics"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Config controls Client behavior.
type Config struct {
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration
	PerHostRPS        float64
	PerHostBurst      int
	UserAgents        []string
}

// Response is the result of a successful fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client issues GET requests through a Colly collector with retry, backoff,
// per-host throttling, and a rotating user-agent pool. Safe for concurrent
// use; the per-host limiter is the only shared mutable state.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *hostLimiter
	retry         *retryPolicy
	uaIndex       atomic.Uint64
	logger        *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = []string{defaultUserAgent}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Retries revisit the same URL; the collector must not dedupe them.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Client{
		cfg:           cfg,
		baseCollector: c,
		limiter:       newHostLimiter(cfg.PerHostRPS, cfg.PerHostBurst),
		retry:         newRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax, cfg.BackoffMultiplier),
		logger:        logger,
	}
}

// Get fetches the URL, retrying transient failures until the retry budget is
// spent. Permanent client errors (4xx other than 429) surface immediately.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.wait(ctx, url); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, url)
		if err == nil {
			metrics.IncFetch(url, resp.StatusCode)
			return &resp, nil
		}
		lastErr = err

		var fe *Error
		if errors.As(err, &fe) {
			metrics.IncFetch(url, fe.Status)
			if fe.IsPermanent() {
				return nil, err
			}
		}
		if !c.retry.shouldRetry(ctx, err, attempt) {
			break
		}

		metrics.IncFetchRetry()
		wait := c.retry.backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	status := 0
	var fe *Error
	if errors.As(lastErr, &fe) {
		status = fe.Status
	}
	return nil, &Error{Kind: KindExhaustedRetries, Status: status, URL: url, Err: lastErr}
}

// doOnce performs a single attempt through a cloned collector.
func (c *Client) doOnce(ctx context.Context, url string) (Response, error) {
	collector := c.baseCollector.Clone()
	collector.UserAgent = c.nextUserAgent()
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = classify(url, r, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case visitErr := <-done:
		if fetchErr != nil {
			return Response{}, fetchErr
		}
		if visitErr != nil {
			return Response{}, classify(url, nil, visitErr)
		}
		return result, nil
	}
}

func (c *Client) nextUserAgent() string {
	i := c.uaIndex.Add(1)
	return c.cfg.UserAgents[int(i-1)%len(c.cfg.UserAgents)]
}

// classify maps a collector error onto the fetch error taxonomy.
func classify(url string, r *colly.Response, err error) error {
	if r != nil && r.StatusCode >= 400 {
		return &Error{Kind: KindHTTPStatus, Status: r.StatusCode, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	return &Error{Kind: KindNetwork, URL: url, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
