package proxypool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Outcome is the result class of one evaluation.
type Outcome int

const (
	// OutcomeRetryGate means the request has not failed often enough yet.
	OutcomeRetryGate Outcome = iota

	// OutcomeRandomGate means the random draw exceeded the enable rate.
	OutcomeRandomGate

	// OutcomeAssigned means a proxy was fetched and set on the request.
	OutcomeAssigned

	// OutcomeUnavailable means the pool could not provide a proxy.
	OutcomeUnavailable
)

// String returns the outcome label used in logs, metrics and the journal.
func (o Outcome) String() string {
	switch o {
	case OutcomeRetryGate:
		return "retry-gate"
	case OutcomeRandomGate:
		return "random-gate"
	case OutcomeAssigned:
		return "assigned"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, bool) {
	for o := OutcomeRetryGate; o <= OutcomeUnavailable; o++ {
		if o.String() == s {
			return o, true
		}
	}
	return 0, false
}

// Decision records what one evaluation did.
type Decision struct {
	Outcome Outcome

	// Proxy is the proxy URL set on the request, "" unless Outcome is OutcomeAssigned.
	Proxy string

	// RetryTimes is the retry count the request carried.
	RetryTimes int

	// Draw is the random number drawn by the random gate, -1 if none was drawn.
	Draw float64

	// Err is the recoverable fetch error for OutcomeUnavailable.
	Err error

	// Time is when the evaluation started.
	Time time.Time

	// Elapsed is how long the evaluation took.
	Elapsed time.Duration
}

// Recorder receives every decision, e.g. to persist it.
// Recorder errors are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, d Decision) error
}

// RandomSource returns a uniform number in [0, 1). It must be safe for
// concurrent use.
type RandomSource func() float64

// Policy decides per request whether to attach a proxy from the pool.
type Policy struct {
	cfg      Config
	fetcher  Fetcher
	random   RandomSource
	logger   *slog.Logger
	metrics  *Metrics
	recorder Recorder
}

// Option configures a Policy.
type Option func(*Policy)

// WithFetcher replaces the default blocking Client.
func WithFetcher(f Fetcher) Option {
	return func(p *Policy) {
		p.fetcher = f
	}
}

// WithRandomSource replaces the random source of the random gate.
func WithRandomSource(r RandomSource) Option {
	return func(p *Policy) {
		p.random = r
	}
}

// WithLogger sets the logger for gate decisions and fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// WithMetrics records decisions in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Policy) {
		p.metrics = m
	}
}

// WithRecorder hands every decision to r.
func WithRecorder(r Recorder) Option {
	return func(p *Policy) {
		p.recorder = r
	}
}

// New validates cfg and builds a Policy. It returns a *ConfigError when
// cfg cannot work, so the caller can refuse to wire the engine.
//
// Without WithFetcher the policy fetches through a blocking Client built
// from cfg.
func New(cfg Config, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Policy{
		cfg:    cfg,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.fetcher == nil {
		p.fetcher = NewClient(cfg, WithClientLogger(p.logger), WithClientMetrics(p.metrics))
	}
	return p, nil
}

// Config returns the configuration the policy was built with.
func (p *Policy) Config() Config {
	return p.cfg
}

// Evaluate decides whether req should use a proxy and mutates it
// accordingly. It never fails: when the pool cannot help, the request is
// left as it was and proceeds without a proxy.
//
// The retry gate is checked before the random gate, so a request that is
// not yet eligible costs neither a random draw nor a pool call.
func (p *Policy) Evaluate(ctx context.Context, req Request) Decision {
	d := Decision{
		RetryTimes: req.RetryTimes(),
		Draw:       -1,
		Time:       time.Now(),
	}

	d = p.decide(ctx, req, d)
	d.Elapsed = time.Since(d.Time)

	p.metrics.observeDecision(d.Outcome)
	if p.recorder != nil {
		if err := p.recorder.Record(ctx, d); err != nil {
			p.logger.Warn("failed to record proxy decision", "error", err)
		}
	}
	return d
}

func (p *Policy) decide(ctx context.Context, req Request, d Decision) Decision {
	if p.cfg.MinRetryTimes > 0 {
		p.logger.Debug("current retry times", "retryTimes", d.RetryTimes)
		if d.RetryTimes < p.cfg.MinRetryTimes {
			p.logger.Debug("retry times below threshold, skipping proxy",
				"retryTimes", d.RetryTimes,
				"minRetryTimes", p.cfg.MinRetryTimes,
			)
			Clear(req)
			d.Outcome = OutcomeRetryGate
			return d
		}
	}

	if p.cfg.RandomEnableRate < 1 {
		d.Draw = p.random()
		p.logger.Debug("drew random number", "draw", d.Draw)
		if d.Draw > p.cfg.RandomEnableRate {
			p.logger.Debug("random number above enable rate, skipping proxy",
				"draw", d.Draw,
				"randomEnableRate", p.cfg.RandomEnableRate,
			)
			Clear(req)
			d.Outcome = OutcomeRandomGate
			return d
		}
	}

	addr, err := p.fetch(ctx)
	if err != nil {
		p.logger.Error("can not get proxy from proxy pool",
			"reason", reason(err),
			"error", err,
		)
		d.Outcome = OutcomeUnavailable
		d.Err = err
		return d
	}

	Apply(req, addr)
	d.Outcome = OutcomeAssigned
	d.Proxy = req.Proxy()
	p.logger.Debug("assigned proxy", "proxy", d.Proxy)
	return d
}

// fetch calls the fetcher and turns a panic in a user-supplied extractor
// or fetcher into an error, so that nothing escapes Evaluate.
func (p *Policy) fetch(ctx context.Context) (addr string, err error) {
	defer func() {
		if r := recover(); r != nil {
			addr = ""
			err = &UpstreamError{Err: panicError{value: r}}
		}
	}()
	return p.fetcher.Fetch(ctx)
}

// Go evaluates req on a new goroutine and delivers the decision on the
// returned channel, for hosts that must not block their dispatcher.
// The request must not be touched until the decision arrives.
func (p *Policy) Go(ctx context.Context, req Request) <-chan Decision {
	ch := make(chan Decision, 1)
	go func() {
		ch <- p.Evaluate(ctx, req)
	}()
	return ch
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic during fetch: %v", e.value)
}
