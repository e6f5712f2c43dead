package proxypool

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePool is an httptest proxy pool that counts its hits.
type fakePool struct {
	*httptest.Server
	hits atomic.Int64
}

// newFakePool starts a pool answering every GET with status and body.
func newFakePool(t *testing.T, status int, body string) *fakePool {
	t.Helper()

	p := &fakePool{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body) //nolint:errcheck // test server
	}))
	t.Cleanup(p.Close)
	return p
}

// fixedRandom returns a RandomSource that always yields v.
func fixedRandom(v float64) RandomSource {
	return func() float64 { return v }
}

// poolConfig returns a valid config pointing at url.
func poolConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	return cfg
}

// testutilCount returns the fetch error counter for reason.
func testutilCount(t *testing.T, m *Metrics, reason string) float64 {
	t.Helper()
	return testutil.ToFloat64(m.fetchErrors.WithLabelValues(reason))
}
