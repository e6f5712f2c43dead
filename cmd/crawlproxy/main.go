// Package main provides the entry point for the crawlproxy CLI.
//
// crawlproxy routes crawl requests through proxies fetched from a proxy
// pool service. It decides per request whether to use a proxy at all
// (retry gate, random gate), asks the pool for one address and hands it
// to the crawler.
//
// Usage:
//
//	crawlproxy crawl --pool-url http://pool.local/random
//	crawlproxy fetch --pool-url http://pool.local/random -n 5
//	crawlproxy history --markdown
//
// See --help for all available options.
package main

// main is the entry point for crawlproxy.
func main() {
	Execute()
}
