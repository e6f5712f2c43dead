// Package database provides the SQLite decision journal of crawlproxy.
//
// The journal stores one row per crawl run and one row per proxy decision,
// so the history command can summarize how often the pool was consulted,
// which gate skipped requests and which proxies were handed out.
//
// It uses modernc.org/sqlite, a CGO-free driver, and WAL mode so that a
// running crawl and a history query can share the file.
package database
