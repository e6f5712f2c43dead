package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// Default configuration values.
const (
	// AppName is used for XDG directory paths.
	AppName = "crawlproxy"

	// DefaultPoolTimeout bounds each call to the proxy pool.
	DefaultPoolTimeout = 5 * time.Second

	// DefaultPages is the number of form requests the httpbin spider sends.
	DefaultPages = 100

	// DefaultDelay is the server-side delay, in seconds, requested from httpbin.
	DefaultDelay = 3

	// DefaultConcurrency is the number of requests in flight at once.
	DefaultConcurrency = 16

	// DefaultRetryTimes is how often a failed crawl request is retried.
	// Retries feed the retry gate of the proxy pool.
	DefaultRetryTimes = 2

	// DefaultRequestTimeout bounds each crawl request.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultTargetURL is the httpbin instance crawled by the example spider.
	DefaultTargetURL = "https://httpbin.org"

	// DefaultUserAgent identifies crawlproxy in HTTP requests.
	DefaultUserAgent = "crawlproxy/1.0 (+https://github.com/nao1215/crawlproxy)"
)

// TunnelConfig describes a proxy tunnel: a single long-lived proxy endpoint
// that rotates exits on its side. It is parsed from the configuration file
// so deployments can already declare it, but nothing consumes it yet.
type TunnelConfig struct {
	URL              string   `yaml:"url,omitempty"`
	Auth             bool     `yaml:"auth,omitempty"`
	Username         string   `yaml:"username,omitempty"`
	Password         string   `yaml:"password,omitempty"`
	MinRetryTimes    int      `yaml:"min_retry_times,omitempty"`
	RandomEnableRate *float64 `yaml:"random_enable_rate,omitempty"`
}

// Validate checks the shape of the tunnel section. An empty section is valid.
func (t TunnelConfig) Validate() error {
	if t.MinRetryTimes < 0 {
		return fmt.Errorf("%w: min_retry_times must be non-negative", ErrInvalidTunnel)
	}
	if t.RandomEnableRate != nil && (*t.RandomEnableRate < 0 || *t.RandomEnableRate > 1) {
		return fmt.Errorf("%w: random_enable_rate must be within [0, 1]", ErrInvalidTunnel)
	}
	if t.Auth && t.Username == "" {
		return fmt.Errorf("%w: auth requires a username", ErrInvalidTunnel)
	}
	return nil
}

// Config holds every crawlproxy option.
// It is built from defaults, the configuration file and flags, validated
// once, and then passed by pointer to the components that need it.
type Config struct {
	// PoolURL is the proxy pool endpoint. Required.
	PoolURL string

	// PoolAuth enables HTTP basic auth on pool requests.
	PoolAuth bool

	// PoolUsername is the basic auth user.
	PoolUsername string

	// PoolPassword is the basic auth password.
	PoolPassword string

	// MinRetryTimes is the retry gate threshold. 0 disables the gate.
	MinRetryTimes int

	// RandomEnableRate is the probability of asking the pool for a proxy.
	RandomEnableRate float64

	// PoolTimeout bounds each pool call. 0 disables the timeout.
	PoolTimeout time.Duration

	// Extractor is the registered name of the extraction strategy.
	Extractor string

	// ExtractorField is the JSON field read by the json extractor.
	ExtractorField string

	// Async fetches proxies on worker goroutines instead of the
	// requesting goroutine.
	Async bool

	// MaxInFlight bounds concurrent pool calls in async mode. 0 selects the default.
	MaxInFlight int

	// BreakerEnabled stops calling a failing pool for BreakerCooldown
	// after BreakerFailures consecutive errors.
	BreakerEnabled  bool
	BreakerFailures int
	BreakerCooldown time.Duration

	// Tunnel is the reserved proxy tunnel configuration.
	Tunnel TunnelConfig

	// Pages is the number of requests the httpbin spider sends.
	Pages int

	// Delay is the httpbin response delay in seconds.
	Delay int

	// Concurrency is the number of parallel crawl requests.
	Concurrency int

	// RetryTimes is how often a failed crawl request is retried.
	RetryTimes int

	// RequestTimeout bounds each crawl request.
	RequestTimeout time.Duration

	// TargetURL is the base URL of the httpbin service.
	TargetURL string

	// UserAgent is sent with crawl requests.
	UserAgent string

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches the log format to JSON.
	JSONLog bool

	// ConfigFilePath is the explicit configuration file, if any.
	ConfigFilePath string

	// SaveToDB records every proxy decision in the journal under DBDir.
	SaveToDB bool

	// DBDir is the directory of the decision journal.
	DBDir string

	// MetricsAddr, when set, serves prometheus metrics during the crawl.
	MetricsAddr string

	// MarkdownReport prints the crawl summary as Markdown.
	MarkdownReport bool
}

// NewConfig returns a Config with default values. PoolURL is left empty.
func NewConfig() *Config {
	return &Config{
		RandomEnableRate: proxypool.DefaultRandomEnableRate,
		PoolTimeout:      DefaultPoolTimeout,
		Extractor:        proxypool.ExtractorText,
		ExtractorField:   proxypool.DefaultJSONField,
		MaxInFlight:      proxypool.DefaultMaxInFlight,
		BreakerFailures:  proxypool.DefaultBreakerFailures,
		BreakerCooldown:  proxypool.DefaultBreakerCooldown,
		Pages:            DefaultPages,
		Delay:            DefaultDelay,
		Concurrency:      DefaultConcurrency,
		RetryTimes:       DefaultRetryTimes,
		RequestTimeout:   DefaultRequestTimeout,
		TargetURL:        DefaultTargetURL,
		UserAgent:        DefaultUserAgent,
		SaveToDB:         true,
		DBDir:            XDGDataDir(),
	}
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/crawlproxy on Linux.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/crawlproxy on Linux.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// Proxy pool problems come back as *proxypool.ConfigError.
func (c *Config) Validate() error {
	if _, err := c.PoolConfig(); err != nil {
		return err
	}
	if err := c.Tunnel.Validate(); err != nil {
		return err
	}
	if c.MaxInFlight < 0 {
		return ErrInvalidMaxInFlight
	}
	if c.BreakerFailures < 0 || c.BreakerCooldown < 0 {
		return ErrInvalidBreaker
	}
	if c.Pages <= 0 {
		return ErrInvalidPages
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.RetryTimes < 0 {
		return ErrInvalidRetryTimes
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}
	return nil
}

// PoolConfig resolves the proxy pool part of the configuration, including
// the extractor lookup, into the engine's configuration type.
func (c *Config) PoolConfig() (proxypool.Config, error) {
	extractor, err := c.extractor()
	if err != nil {
		return proxypool.Config{}, err
	}

	pc := proxypool.Config{
		URL:              c.PoolURL,
		Auth:             c.PoolAuth,
		Username:         c.PoolUsername,
		Password:         c.PoolPassword,
		MinRetryTimes:    c.MinRetryTimes,
		RandomEnableRate: c.RandomEnableRate,
		Timeout:          c.PoolTimeout,
		Extractor:        extractor,
	}
	if err := pc.Validate(); err != nil {
		return proxypool.Config{}, err
	}
	return pc, nil
}

func (c *Config) extractor() (proxypool.Extractor, error) {
	if c.Extractor == proxypool.ExtractorJSON && c.ExtractorField != proxypool.DefaultJSONField {
		return proxypool.JSONExtractor{Field: c.ExtractorField}, nil
	}
	e, err := proxypool.LookupExtractor(c.Extractor)
	if err != nil {
		return nil, fmt.Errorf("extractor %q (available: %v): %w", c.Extractor, proxypool.Extractors(), err)
	}
	return e, nil
}
