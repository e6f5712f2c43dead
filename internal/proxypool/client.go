package proxypool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Fetcher obtains one proxy address from the pool.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Client performs a single blocking GET against the proxy pool.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used to reach the pool.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientLogger sets the logger for fetch diagnostics.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientMetrics records fetch latency and errors.
func WithClientMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a pool client. The configuration is not validated here
// so that a client can be built for a deployment that fills in the URL
// later; Fetch guards against the missing URL instead.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Fetch asks the pool for one proxy and returns its "host:port" address.
func (c *Client) Fetch(ctx context.Context) (addr string, err error) {
	if c.cfg.URL == "" {
		return "", &ConfigError{Field: "proxy_pool.url", Err: ErrPoolURLRequired}
	}

	start := time.Now()
	defer func() {
		c.metrics.observeFetch(time.Since(start), err)
	}()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	if c.cfg.Auth {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	c.logger.Debug("fetching proxy from pool",
		"url", c.cfg.URL,
		"timeout", c.cfg.Timeout,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize)) //nolint:errcheck // best effort
		return "", &UpstreamError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return "", &UpstreamError{Err: fmt.Errorf("read body: %w", err)}
	}

	addr = c.cfg.extractor().Extract(string(body))
	if addr == "" {
		return "", ErrExtraction
	}

	c.logger.Debug("got proxy from pool", "proxy", addr)
	return addr, nil
}
