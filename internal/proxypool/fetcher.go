package proxypool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight is the default number of concurrent pool calls
// an AsyncFetcher allows.
const DefaultMaxInFlight = 16

// Result is the outcome of an asynchronous fetch.
type Result struct {
	Addr string
	Err  error
}

// AsyncFetcher runs fetches on their own goroutines so that a caller
// dispatching many requests is suspended on a channel instead of on the
// network. At most maxInFlight fetches talk to the pool at once; the rest
// wait for a slot.
type AsyncFetcher struct {
	next Fetcher
	sem  *semaphore.Weighted
}

// NewAsyncFetcher wraps next. maxInFlight <= 0 selects DefaultMaxInFlight.
func NewAsyncFetcher(next Fetcher, maxInFlight int) *AsyncFetcher {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &AsyncFetcher{
		next: next,
		sem:  semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// FetchAsync starts a fetch and returns a channel that receives exactly one
// Result. The channel is buffered, so abandoning it does not leak the
// goroutine.
func (f *AsyncFetcher) FetchAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			ch <- Result{Err: &UpstreamError{Err: err}}
			return
		}
		defer f.sem.Release(1)

		addr, err := f.next.Fetch(ctx)
		ch <- Result{Addr: addr, Err: err}
	}()
	return ch
}

// Fetch implements Fetcher by waiting on FetchAsync.
func (f *AsyncFetcher) Fetch(ctx context.Context) (string, error) {
	select {
	case res := <-f.FetchAsync(ctx):
		return res.Addr, res.Err
	case <-ctx.Done():
		return "", &UpstreamError{Err: ctx.Err()}
	}
}
