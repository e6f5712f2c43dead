package config

import "errors"

// Crawl configuration errors returned by Config.Validate.
// Proxy pool problems are reported as *proxypool.ConfigError instead.
var (
	// ErrInvalidPages is returned when the number of pages to crawl is not positive.
	ErrInvalidPages = errors.New("invalid pages: must be positive")

	// ErrInvalidDelay is returned when the httpbin delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRetryTimes is returned when the crawl retry count is negative.
	ErrInvalidRetryTimes = errors.New("invalid retry times: must be non-negative")

	// ErrInvalidRequestTimeout is returned when the crawl request timeout is not positive.
	ErrInvalidRequestTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidMaxInFlight is returned when the async fetch bound is negative.
	ErrInvalidMaxInFlight = errors.New("invalid max in-flight pool fetches: must be non-negative")

	// ErrInvalidBreaker is returned when breaker settings are negative.
	ErrInvalidBreaker = errors.New("invalid breaker settings: must be non-negative")

	// ErrInvalidTunnel is returned when the reserved proxy tunnel section is malformed.
	ErrInvalidTunnel = errors.New("invalid proxy tunnel settings")
)
