package proxypool

import "time"

// DefaultRandomEnableRate lets every request that passed the retry gate
// ask the pool for a proxy.
const DefaultRandomEnableRate = 1.0

// MaxBodySize bounds how much of a pool response is read.
// A pool answers with a single address, so anything larger is garbage.
const MaxBodySize = 64 * 1024

// Config is the resolved proxy pool configuration.
// It is built once at startup and never modified afterwards, which makes it
// safe to share between concurrent evaluations.
type Config struct {
	// URL is the proxy pool endpoint. Required.
	URL string

	// Auth attaches HTTP basic auth with Username and Password to each fetch.
	Auth bool

	// Username is the basic auth user.
	Username string

	// Password is the basic auth password.
	Password string

	// MinRetryTimes is the number of failed attempts a request must have
	// before it may use a proxy. Zero disables the retry gate.
	MinRetryTimes int

	// RandomEnableRate is the probability, in [0, 1], that a request which
	// passed the retry gate asks the pool for a proxy. 1 disables the gate.
	RandomEnableRate float64

	// Timeout bounds each pool call. Zero means no timeout beyond the
	// caller's context.
	Timeout time.Duration

	// Extractor turns the pool response body into an address.
	// nil selects TextExtractor.
	Extractor Extractor
}

// DefaultConfig returns a Config with every optional field at its default.
// URL still has to be set.
func DefaultConfig() Config {
	return Config{
		RandomEnableRate: DefaultRandomEnableRate,
		Extractor:        TextExtractor{},
	}
}

// Validate checks the configuration and returns a *ConfigError for the
// first problem found.
func (c Config) Validate() error {
	if c.URL == "" {
		return &ConfigError{Field: "proxy_pool.url", Err: ErrPoolURLRequired}
	}
	if c.RandomEnableRate < 0 || c.RandomEnableRate > 1 {
		return &ConfigError{Field: "proxy_pool.random_enable_rate", Err: ErrInvalidRandomEnableRate}
	}
	if c.MinRetryTimes < 0 {
		return &ConfigError{Field: "proxy_pool.min_retry_times", Err: ErrInvalidMinRetryTimes}
	}
	if c.Timeout < 0 {
		return &ConfigError{Field: "proxy_pool.timeout", Err: ErrInvalidTimeout}
	}
	if c.Auth && c.Username == "" {
		return &ConfigError{Field: "proxy_pool.username", Err: ErrMissingCredentials}
	}
	return nil
}

// extractor returns the configured extractor or the text default.
func (c Config) extractor() Extractor {
	if c.Extractor == nil {
		return TextExtractor{}
	}
	return c.Extractor
}
