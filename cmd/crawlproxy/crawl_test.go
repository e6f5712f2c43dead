package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// newHttpbin answers POST /delay/<n> with the client address as origin.
func newHttpbin(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		origin, _, _ := net.SplitHostPort(r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"origin": origin,
			"form":   map[string]string{"page": r.PostForm.Get("page")},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newForwardProxy answers proxied requests itself with a fixed origin.
func newForwardProxy(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"origin": "203.0.113.7",
			"form":   map[string]string{"page": r.PostForm.Get("page")},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlAndHistory(t *testing.T) {
	t.Parallel()

	var targetHits, proxyHits, poolCalls atomic.Int64
	target := newHttpbin(t, &targetHits)
	proxy := newForwardProxy(t, &proxyHits)
	proxyAddr := strings.TrimPrefix(proxy.URL, "http://")
	pool := newPool(t, http.StatusOK, proxyAddr, &poolCalls)

	cfg := writeConfig(t, "crawl:\n  concurrency: 2\n")
	dbDir := t.TempDir()

	out, _, err := execute(t, "crawl",
		"--config", cfg,
		"--pool-url", pool.URL,
		"--target-url", target.URL,
		"--pages", "4",
		"--delay", "0",
		"--db-dir", dbDir,
		"-v",
	)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	if proxyHits.Load() != 4 || targetHits.Load() != 0 {
		t.Errorf("expected 4 proxied requests and no direct ones, got proxy=%d target=%d",
			proxyHits.Load(), targetHits.Load())
	}
	if poolCalls.Load() != 4 {
		t.Errorf("expected one pool call per request, got %d", poolCalls.Load())
	}
	for _, want := range []string{"Crawl finished", "CRAWLPROXY SUMMARY", "Requested: 4", "Succeeded: 4", "203.0.113.7 (4)"} {
		if !strings.Contains(out, want) {
			t.Errorf("crawl output missing %q:\n%s", want, out)
		}
	}

	t.Run("history of the latest run", func(t *testing.T) {
		out, _, err := execute(t, "history", "--db-dir", dbDir, "--recent", "2")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		for _, want := range []string{"Run:        #1", "PROXY DECISIONS", "http://" + proxyAddr, "NEWEST DECISIONS", "assigned"} {
			if !strings.Contains(out, want) {
				t.Errorf("history output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("history as json", func(t *testing.T) {
		out, _, err := execute(t, "history", "--db-dir", dbDir, "--all", "--json")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if !json.Valid([]byte(out)) {
			t.Errorf("expected valid JSON, got %q", out)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		if _, _, err := execute(t, "history", "--db-dir", dbDir, "--run", "99"); err == nil {
			t.Fatal("expected error for unknown run")
		}
	})

	t.Run("json and markdown are exclusive", func(t *testing.T) {
		if _, _, err := execute(t, "history", "--db-dir", dbDir, "--json", "--markdown"); err == nil {
			t.Fatal("expected error for conflicting flags")
		}
	})
}

func TestCrawlWithoutJournal(t *testing.T) {
	t.Parallel()

	var targetHits, poolCalls atomic.Int64
	target := newHttpbin(t, &targetHits)
	pool := newPool(t, http.StatusOK, "unused:1", &poolCalls)
	cfg := writeConfig(t, "crawl:\n  concurrency: 1\n")

	// A zero rate never asks the pool, so every request goes out directly.
	out, logs, err := execute(t, "crawl",
		"--config", cfg,
		"--pool-url", pool.URL,
		"--random-enable-rate", "0",
		"--target-url", target.URL,
		"--pages", "2",
		"--delay", "0",
		"--no-db",
		"--markdown",
	)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if targetHits.Load() != 2 || poolCalls.Load() != 0 {
		t.Errorf("expected 2 direct requests and no pool calls, got target=%d pool=%d",
			targetHits.Load(), poolCalls.Load())
	}
	// Per-page results are visible without --verbose.
	if strings.Count(logs, "request succeeded") != 2 || !strings.Contains(logs, "origin=127.0.0.1") {
		t.Errorf("expected one info line per page:\n%s", logs)
	}
	if strings.Contains(logs, "level=DEBUG") {
		t.Errorf("debug lines must stay hidden without --verbose:\n%s", logs)
	}
	if !strings.Contains(out, "Random Gate") {
		t.Errorf("expected markdown summary with the random gate outcome:\n%s", out)
	}
}

func TestCrawlInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "crawl:\n  pages: 1\n")
	_, _, err := execute(t, "crawl", "--config", cfg, "--no-db")
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	t.Parallel()

	if _, _, err := execute(t, "history", "--db-dir", t.TempDir()); err == nil {
		t.Fatal("expected error when no journal exists")
	}
}
