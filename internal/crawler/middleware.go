package crawler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gocolly/colly/v2"

	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// RetryTimesKey is the colly context key holding how often a request has
// been retried.
const RetryTimesKey = "retry_times"

// ProxyKey is the colly context key holding the proxy of the last attempt.
const ProxyKey = "proxy"

// DefaultRetryTimes is the default number of retries per request.
const DefaultRetryTimes = 2

// Private headers carrying per-attempt state from OnRequest to the
// transport. The transport strips them before the request leaves.
const (
	attemptHeader = "X-Crawlproxy-Attempt"
	retryHeader   = "X-Crawlproxy-Retry-Times"
	proxyHeader   = "X-Crawlproxy-Proxy"
)

var privateHeaders = []string{attemptHeader, retryHeader, proxyHeader}

// DefaultRetryCodes are the HTTP status codes that trigger a retry.
var DefaultRetryCodes = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	522,
	524,
}

// Evaluator decides the proxy of one request. *proxypool.Policy implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, req proxypool.Request) proxypool.Decision
}

// Middleware connects an Evaluator to colly collectors.
type Middleware struct {
	policy     Evaluator
	retryTimes int
	retryCodes []int
	logger     *slog.Logger

	seq      atomic.Uint64
	attempts sync.Map // attempt ID -> *attempt
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithRetryTimes sets how often a failed request is re-issued.
func WithRetryTimes(n int) Option {
	return func(m *Middleware) {
		m.retryTimes = n
	}
}

// WithRetryCodes sets the status codes that are retried.
// Transport errors are always retried.
func WithRetryCodes(codes ...int) Option {
	return func(m *Middleware) {
		m.retryCodes = codes
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// New creates a Middleware around policy.
func New(policy Evaluator, opts ...Option) *Middleware {
	m := &Middleware{
		policy:     policy,
		retryTimes: DefaultRetryTimes,
		retryCodes: DefaultRetryCodes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach installs the proxy-resolving transport and the request, response
// and retry hooks on c. It replaces the transport set on c before.
func (m *Middleware) Attach(c *colly.Collector) {
	c.WithTransport(m.Transport())
	c.OnRequest(m.stamp)
	c.OnResponseHeaders(m.settle)
	c.OnError(m.onError)
}

// Transport returns the round tripper Attach installs. It strips the
// private headers and resolves the proxy of each attempt once, including
// across redirects.
func (m *Middleware) Transport() http.RoundTripper {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = m.proxyFunc
	base.DisableKeepAlives = true
	return &transport{m: m, next: base}
}

// attempt is the decision state of one request attempt.
type attempt struct {
	req  proxypool.Meta
	once sync.Once
	url  *url.URL
}

// proxy returns the proxy URL the attempt went through, "" if direct.
func (a *attempt) proxy() string {
	a.once.Do(func() {})
	if a.url == nil {
		return ""
	}
	return a.url.String()
}

type attemptKey struct{}

type transport struct {
	m    *Middleware
	next http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := req.Header.Get(attemptHeader)
	if id == "" {
		return t.next.RoundTrip(req)
	}

	v, _ := t.m.attempts.LoadOrStore(id, &attempt{req: requestMeta(req.Header)})
	out := req.Clone(context.WithValue(req.Context(), attemptKey{}, v))
	for _, h := range privateHeaders {
		out.Header.Del(h)
	}
	resp, err := t.next.RoundTrip(out)
	if resp != nil {
		// colly reads the attempt ID back from the request of the response.
		resp.Request = req
	}
	return resp, err
}

func (m *Middleware) stamp(r *colly.Request) {
	r.Headers.Set(attemptHeader, strconv.FormatUint(m.seq.Add(1), 10))
	r.Headers.Set(retryHeader, strconv.Itoa(RetryCount(r.Ctx)))
	if p := r.Ctx.Get(ProxyKey); p != "" {
		r.Headers.Set(proxyHeader, p)
	} else {
		r.Headers.Del(proxyHeader)
	}
}

func (m *Middleware) proxyFunc(pr *http.Request) (*url.URL, error) {
	a, ok := pr.Context().Value(attemptKey{}).(*attempt)
	if !ok {
		req := requestMeta(pr.Header)
		return m.evaluate(pr, &req), nil
	}
	a.once.Do(func() {
		a.url = m.evaluate(pr, &a.req)
	})
	return a.url, nil
}

func (m *Middleware) evaluate(pr *http.Request, req *proxypool.Meta) *url.URL {
	d := m.policy.Evaluate(pr.Context(), req)

	m.logger.Debug("proxy decision",
		"url", pr.URL.String(),
		"outcome", d.Outcome.String(),
		"retry_times", d.RetryTimes,
		"proxy", req.Proxy())

	p := req.Proxy()
	if p == "" {
		return nil
	}
	u, err := url.Parse(p)
	if err != nil {
		m.logger.Error("invalid proxy from pool, connecting directly", "proxy", p, "error", err)
		return nil
	}
	return u
}

// requestMeta reads the private headers of h.
func requestMeta(h http.Header) proxypool.Meta {
	var req proxypool.Meta
	if v := h.Get(retryHeader); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.Retries = n
		}
	}
	req.ProxyURL = h.Get(proxyHeader)
	return req
}

// settle reports the proxy of the finished attempt on r.Request.ProxyURL and
// in the colly context, where the next retry picks it up.
func (m *Middleware) settle(r *colly.Response) {
	if r == nil || r.Request == nil || r.Request.Headers == nil {
		return
	}
	h := *r.Request.Headers
	id := h.Get(attemptHeader)
	if id == "" {
		return
	}
	for _, name := range privateHeaders {
		h.Del(name)
	}

	v, ok := m.attempts.LoadAndDelete(id)
	if !ok {
		return
	}
	p := v.(*attempt).proxy()
	r.Request.ProxyURL = p
	if r.Ctx != nil {
		r.Ctx.Put(ProxyKey, p)
	}
}

func (m *Middleware) onError(r *colly.Response, err error) {
	m.settle(r)
	m.retry(r, err)
}

func (m *Middleware) retry(r *colly.Response, err error) {
	if r == nil || r.Request == nil {
		return
	}
	if r.StatusCode != 0 && !slices.Contains(m.retryCodes, r.StatusCode) {
		return
	}

	n := RetryCount(r.Ctx)
	if n >= m.retryTimes {
		m.logger.Warn("giving up request",
			"url", r.Request.URL.String(),
			"retry_times", n,
			"status", r.StatusCode,
			"error", err)
		return
	}

	r.Ctx.Put(RetryTimesKey, n+1)

	m.logger.Debug("retrying request",
		"url", r.Request.URL.String(),
		"retry_times", n+1,
		"status", r.StatusCode,
		"error", err)

	// Form bodies were consumed by the failed attempt.
	if s, ok := r.Request.Body.(io.Seeker); ok {
		if _, serr := s.Seek(0, io.SeekStart); serr != nil {
			m.logger.Warn("cannot rewind request body", "url", r.Request.URL.String(), "error", serr)
			return
		}
	}

	if rerr := r.Request.Retry(); rerr != nil {
		m.logger.Warn("retry failed", "url", r.Request.URL.String(), "error", rerr)
	}
}

// RetryCount returns the retry count stored in ctx, 0 when absent.
func RetryCount(ctx *colly.Context) int {
	if ctx == nil {
		return 0
	}
	n, _ := ctx.GetAny(RetryTimesKey).(int)
	return n
}
