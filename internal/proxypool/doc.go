// Package proxypool decides, per outbound crawl request, whether the request
// should go through a proxy taken from an external proxy pool service.
//
// The package is made of three parts:
//   - Client performs one HTTP GET against the pool and turns the response
//     body into a "host:port" address with a pluggable Extractor.
//   - Policy gates the fetch on the request's retry count and on a random
//     sampling rate, then calls the Fetcher.
//   - Apply and Clear write the outcome into the request.
//
// A failing pool never fails the crawl. Every per-request problem (non-200
// status, network error, timeout, unusable body) is logged and the request
// proceeds without a proxy. Only a missing pool URL is fatal, and it is
// reported by New before any request is evaluated.
//
// # Usage
//
//	cfg := proxypool.DefaultConfig()
//	cfg.URL = "http://localhost:5555/random"
//	cfg.MinRetryTimes = 1
//
//	policy, err := proxypool.New(cfg, proxypool.WithLogger(logger))
//	if err != nil {
//	    return err // *proxypool.ConfigError
//	}
//
//	req := &proxypool.Meta{Retries: 2}
//	decision := policy.Evaluate(ctx, req)
//	// req.Proxy() == "http://1.2.3.4:8080" when the pool answered
//
// # Concurrency models
//
// Client blocks the calling goroutine until the pool answers. AsyncFetcher
// runs each fetch on its own goroutine behind a semaphore and lets the caller
// wait on a channel, which suits hosts that schedule many requests from a
// single dispatcher. Policy works with either through the Fetcher interface.
package proxypool
