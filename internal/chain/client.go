package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gorusys/indigo-proof-of-yield/internal/cache"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/telemetry"
)

const (
	DefaultEndpoint = "https://api.koios.rest/api/v1"
	maxBodyBytes    = 64 << 20
)

type Config struct {
	Endpoint       string
	Token          string
	RequestsPerSec float64
	Burst          int
	HTTPTimeout    time.Duration
	UserAgent      string
}

// StatusError is a non-2xx response from the indexer.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Client talks to a Koios-compatible REST indexer. It implements cache.Fetcher.
type Client struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	requests atomic.Int64
}

var _ cache.Fetcher = (*Client)(nil)

func NewClient(cfg Config, metrics *telemetry.Metrics, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "indigo-poy"
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Requests returns the number of requests sent so far.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// Fetch executes q and returns the raw response body. Client errors other than
// rate limiting are marked permanent so the cache does not retry them.
func (c *Client) Fetch(ctx context.Context, q model.Query) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, q)
	if err != nil {
		return nil, cache.Permanent(err)
	}

	started := time.Now()
	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(q.Endpoint, time.Since(started), err)
		return nil, fmt.Errorf("%s request: %w", q.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.ObserveRequest(q.Endpoint, time.Since(started), err)
		return nil, fmt.Errorf("%s read body: %w", q.Endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Endpoint: q.Endpoint, Status: resp.StatusCode, Body: truncate(string(body), 256)}
		c.metrics.ObserveRequest(q.Endpoint, time.Since(started), statusErr)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			return nil, cache.Permanent(statusErr)
		}
		return nil, statusErr
	}

	c.metrics.ObserveRequest(q.Endpoint, time.Since(started), nil)
	c.logger.Debug("indexer response",
		zap.String("endpoint", q.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, q model.Query) (*http.Request, error) {
	if q.Endpoint == "" {
		return nil, fmt.Errorf("query endpoint is required")
	}
	target := strings.TrimRight(c.cfg.Endpoint, "/") + "/" + q.Endpoint
	if len(q.Params) > 0 {
		values := url.Values{}
		for _, k := range q.ParamKeys() {
			values.Set(k, q.Params[k])
		}
		target += "?" + values.Encode()
	}

	method := q.Method
	if method == "" {
		method = model.MethodGet
	}
	var body io.Reader
	if len(q.Body) > 0 {
		body = bytes.NewReader(q.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
