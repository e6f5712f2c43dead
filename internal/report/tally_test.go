package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/crawlproxy/internal/database"
	"github.com/nao1215/crawlproxy/internal/proxypool"
)

func TestTally(t *testing.T) {
	t.Parallel()

	tally := NewTally()
	ctx := context.Background()

	record := func(o proxypool.Outcome, proxy string, elapsed time.Duration) {
		if err := tally.Record(ctx, proxypool.Decision{Outcome: o, Proxy: proxy, Elapsed: elapsed}); err != nil {
			t.Fatal(err)
		}
	}
	record(proxypool.OutcomeAssigned, "http://b:1", 4*time.Millisecond)
	record(proxypool.OutcomeAssigned, "http://a:1", 2*time.Millisecond)
	record(proxypool.OutcomeAssigned, "http://b:1", 2*time.Millisecond)
	record(proxypool.OutcomeUnavailable, "", 8*time.Millisecond)
	record(proxypool.OutcomeRetryGate, "", time.Microsecond)

	got := tally.Summary(1)
	want := &database.Summary{
		Total: 5,
		ByOutcome: map[proxypool.Outcome]int{
			proxypool.OutcomeAssigned:    3,
			proxypool.OutcomeUnavailable: 1,
			proxypool.OutcomeRetryGate:   1,
		},
		TopProxies: []database.ProxyCount{{Proxy: "http://b:1", Count: 2}},
		AvgFetch:   4 * time.Millisecond,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestTallyEmpty(t *testing.T) {
	t.Parallel()

	s := NewTally().Summary(5)
	if s.Total != 0 || s.AvgFetch != 0 || len(s.TopProxies) != 0 {
		t.Errorf("expected empty summary, got %+v", s)
	}
}

func TestTallyConcurrent(t *testing.T) {
	t.Parallel()

	tally := NewTally()
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tally.Record(context.Background(), proxypool.Decision{Outcome: proxypool.OutcomeRandomGate})
		}()
	}
	wg.Wait()

	if got := tally.Summary(0).ByOutcome[proxypool.OutcomeRandomGate]; got != 64 {
		t.Errorf("expected 64, got %d", got)
	}
}

func TestTallyTopBounds(t *testing.T) {
	t.Parallel()

	tally := NewTally()
	for _, p := range []string{"http://a:1", "http://b:1", "http://a:1"} {
		_ = tally.Record(context.Background(), proxypool.Decision{Outcome: proxypool.OutcomeAssigned, Proxy: p})
	}

	tests := []struct {
		name string
		top  int
		want int
	}{
		{name: "negative", top: -1, want: 0},
		{name: "zero", top: 0, want: 0},
		{name: "fewer than available", top: 1, want: 1},
		{name: "more than available", top: 10, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := len(tally.Summary(tt.top).TopProxies); got != tt.want {
				t.Errorf("Summary(%d) listed %d proxies, want %d", tt.top, got, tt.want)
			}
		})
	}
}
