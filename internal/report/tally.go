package report

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/crawlproxy/internal/database"
	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// Tally counts decisions in memory for runs without a journal.
// It implements proxypool.Recorder.
type Tally struct {
	mu        sync.Mutex
	outcomes  map[proxypool.Outcome]int
	proxies   map[string]int
	fetches   int
	fetchTime time.Duration
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{
		outcomes: make(map[proxypool.Outcome]int),
		proxies:  make(map[string]int),
	}
}

// Record implements proxypool.Recorder.
func (t *Tally) Record(_ context.Context, d proxypool.Decision) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.outcomes[d.Outcome]++
	switch d.Outcome {
	case proxypool.OutcomeAssigned:
		t.proxies[d.Proxy]++
		fallthrough
	case proxypool.OutcomeUnavailable:
		t.fetches++
		t.fetchTime += d.Elapsed
	}
	return nil
}

// Summary returns the counts in the journal's summary shape, with at most
// top proxies.
func (t *Tally) Summary(top int) *database.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &database.Summary{
		ByOutcome: maps.Clone(t.outcomes),
	}
	for _, n := range t.outcomes {
		s.Total += n
	}
	if t.fetches > 0 {
		s.AvgFetch = t.fetchTime / time.Duration(t.fetches)
	}

	proxies := slices.Collect(maps.Keys(t.proxies))
	slices.SortFunc(proxies, func(a, b string) int {
		if c := cmp.Compare(t.proxies[b], t.proxies[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if top <= 0 {
		proxies = nil
	} else if len(proxies) > top {
		proxies = proxies[:top]
	}
	for _, p := range proxies {
		s.TopProxies = append(s.TopProxies, database.ProxyCount{Proxy: p, Count: t.proxies[p]})
	}
	return s
}
