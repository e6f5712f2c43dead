package proxypool

import (
	"errors"
	"fmt"
)

// Configuration errors.
// They are always delivered wrapped in a *ConfigError so callers can tell
// a startup problem from a per-request one with errors.As.
var (
	// ErrPoolURLRequired is returned when no proxy pool URL is configured.
	ErrPoolURLRequired = errors.New("proxy pool URL is required")

	// ErrInvalidRandomEnableRate is returned when the random enable rate is outside [0, 1].
	ErrInvalidRandomEnableRate = errors.New("random enable rate must be between 0 and 1")

	// ErrInvalidMinRetryTimes is returned when the retry threshold is negative.
	ErrInvalidMinRetryTimes = errors.New("min retry times must be non-negative")

	// ErrInvalidTimeout is returned when the pool timeout is negative.
	ErrInvalidTimeout = errors.New("pool timeout must be non-negative")

	// ErrMissingCredentials is returned when basic auth is enabled without a username.
	ErrMissingCredentials = errors.New("pool auth is enabled but no username is set")

	// ErrUnknownExtractor is returned when an extractor name is not registered.
	ErrUnknownExtractor = errors.New("unknown extractor")
)

// Per-request errors. None of them ever leaves Policy.Evaluate.
var (
	// ErrUpstreamFetch is matched by every *UpstreamError.
	ErrUpstreamFetch = errors.New("proxy pool fetch failed")

	// ErrExtraction is returned when the extractor finds no address in a 200 body.
	ErrExtraction = errors.New("no proxy address in pool response")

	// ErrPoolUnavailable is returned by BreakerFetcher while the breaker is open.
	ErrPoolUnavailable = errors.New("proxy pool temporarily unavailable")
)

// ConfigError reports an invalid engine configuration.
// It is fatal: the engine must not be wired into the crawl when it occurs.
type ConfigError struct {
	// Field is the configuration key at fault, e.g. "proxy_pool.url".
	Field string

	// Err is one of the sentinel configuration errors.
	Err error
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

// Unwrap returns the sentinel error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UpstreamError describes a failed call to the pool: either a non-200
// status or a transport-level failure (including timeouts).
type UpstreamError struct {
	// StatusCode is the HTTP status returned by the pool, 0 if none.
	StatusCode int

	// Err is the transport error, nil for status failures.
	Err error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrUpstreamFetch, e.Err)
	}
	return fmt.Sprintf("%v: unexpected status %d", ErrUpstreamFetch, e.StatusCode)
}

// Is reports whether target is ErrUpstreamFetch.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamFetch
}

// Unwrap returns the transport error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// reason classifies err for metrics and the journal.
func reason(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPoolUnavailable):
		return "breaker_open"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.As(err, &upstream) && upstream.StatusCode != 0:
		return "status"
	case errors.As(err, &upstream):
		return "transport"
	default:
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return "config"
		}
		return "other"
	}
}
