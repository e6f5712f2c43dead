// Package crawler plugs the proxy pool decision engine into a colly
// collector.
//
// # Flow
//
// Middleware replaces the collector's transport with one whose Proxy
// function evaluates the policy, so each request attempt gets its own
// decision:
//
//	OnRequest          stamps an attempt ID, the retry count and the previous proxy as private headers
//	transport          strips the headers and keys the attempt by its ID
//	proxy func         runs Policy.Evaluate once per attempt, redirects reuse the result
//	OnResponseHeaders  sets Response.Request.ProxyURL and the "proxy" context key
//	OnError            does the same, then re-issues failed requests and counts retry_times
//
// A nil proxy URL means a direct connection. A retried attempt sees the
// proxy of the attempt before it, "" when that one went out directly.
//
// # Usage
//
//	c := colly.NewCollector(colly.Async(true))
//	crawler.New(policy, crawler.WithRetryTimes(2)).Attach(c)
//	_ = c.Visit("https://httpbin.org/ip")
//	c.Wait()
package crawler
