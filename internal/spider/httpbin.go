package spider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
)

// Defaults of the httpbin spider.
const (
	DefaultBaseURL     = "https://httpbin.org"
	DefaultPages       = 100
	DefaultDelay       = 3
	DefaultConcurrency = 16
	DefaultTimeout     = 60 * time.Second
)

const pageKey = "page"

// Attacher installs request hooks on a collector. *crawler.Middleware implements it.
type Attacher interface {
	Attach(c *colly.Collector)
}

// Page is the parsed result of one successful request.
type Page struct {
	// Page is the page number sent in the form.
	Page int `json:"page"`

	// Origin is the client address httpbin saw.
	Origin string `json:"origin"`

	// ProxyURL is the proxy the request went through, "" if direct.
	ProxyURL string `json:"proxy_url,omitempty"`
}

// Stats summarizes a run.
type Stats struct {
	Requested int
	Succeeded int

	// Origins counts successful pages per origin address.
	Origins map[string]int
}

// Failed returns the number of pages that never succeeded.
func (s Stats) Failed() int {
	return s.Requested - s.Succeeded
}

// Httpbin posts numbered forms to <base>/delay/<delay>.
type Httpbin struct {
	baseURL     string
	pages       int
	delay       int
	concurrency int
	timeout     time.Duration
	userAgent   string
	logger      *slog.Logger
	onPage      func(Page)
	middleware  Attacher
}

// Option configures Httpbin.
type Option func(*Httpbin)

// WithBaseURL sets the httpbin instance.
func WithBaseURL(u string) Option {
	return func(h *Httpbin) {
		h.baseURL = strings.TrimRight(u, "/")
	}
}

// WithPages sets the number of requests.
func WithPages(n int) Option {
	return func(h *Httpbin) {
		h.pages = n
	}
}

// WithDelay sets the server-side delay in seconds.
func WithDelay(seconds int) Option {
	return func(h *Httpbin) {
		h.delay = seconds
	}
}

// WithConcurrency sets the number of parallel requests.
func WithConcurrency(n int) Option {
	return func(h *Httpbin) {
		h.concurrency = n
	}
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Httpbin) {
		h.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(h *Httpbin) {
		h.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Httpbin) {
		h.logger = logger
	}
}

// WithOnPage registers a callback for every parsed page.
// It may be called from several goroutines at once.
func WithOnPage(fn func(Page)) Option {
	return func(h *Httpbin) {
		h.onPage = fn
	}
}

// WithMiddleware attaches request hooks, typically the proxy middleware.
func WithMiddleware(m Attacher) Option {
	return func(h *Httpbin) {
		h.middleware = m
	}
}

// NewHttpbin creates the spider.
func NewHttpbin(opts ...Option) *Httpbin {
	h := &Httpbin{
		baseURL:     DefaultBaseURL,
		pages:       DefaultPages,
		delay:       DefaultDelay,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// URL returns the endpoint every page is posted to.
func (h *Httpbin) URL() string {
	return fmt.Sprintf("%s/delay/%d", h.baseURL, h.delay)
}

// Run sends all pages and waits for them. Cancelling ctx stops new
// requests from being sent; Run then returns ctx.Err() with the stats
// gathered so far.
func (h *Httpbin) Run(ctx context.Context) (Stats, error) {
	c, err := h.collector()
	if err != nil {
		return Stats{}, err
	}

	var (
		succeeded atomic.Int64
		mu        sync.Mutex
		origins   = make(map[string]int)
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page, err := h.parse(r)
		if err != nil {
			h.logger.Warn("cannot parse httpbin response",
				"page", r.Ctx.GetAny(pageKey),
				"error", err)
			return
		}
		succeeded.Add(1)

		mu.Lock()
		origins[page.Origin]++
		mu.Unlock()

		h.logger.Info("request succeeded",
			"origin", page.Origin,
			"page", page.Page,
			"proxy", page.ProxyURL)
		if h.onPage != nil {
			h.onPage(page)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		h.logger.Debug("request attempt failed",
			"page", r.Ctx.GetAny(pageKey),
			"status", r.StatusCode,
			"error", err)
	})

	target := h.URL()
	requested := 0
	for page := 1; page <= h.pages; page++ {
		if ctx.Err() != nil {
			break
		}

		cctx := colly.NewContext()
		cctx.Put(pageKey, page)
		form := url.Values{"page": {strconv.Itoa(page)}}
		hdr := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}

		if err := c.Request(http.MethodPost, target, strings.NewReader(form.Encode()), cctx, hdr); err != nil {
			h.logger.Warn("cannot schedule request", "page", page, "error", err)
		}
		requested++
	}
	c.Wait()

	stats := Stats{
		Requested: requested,
		Succeeded: int(succeeded.Load()),
		Origins:   origins,
	}
	return stats, ctx.Err()
}

func (h *Httpbin) collector() (*colly.Collector, error) {
	base, err := url.Parse(h.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", h.baseURL, err)
	}

	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(base.Hostname()),
	}
	if h.userAgent != "" {
		opts = append(opts, colly.UserAgent(h.userAgent))
	}
	c := colly.NewCollector(opts...)

	if h.timeout > 0 {
		c.SetRequestTimeout(h.timeout)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c.SetCookieJar(jar)

	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: h.concurrency}); err != nil {
		return nil, fmt.Errorf("failed to set concurrency limit: %w", err)
	}

	if h.middleware != nil {
		h.middleware.Attach(c)
	}
	return c, nil
}

type httpbinResponse struct {
	Origin string            `json:"origin"`
	Form   map[string]string `json:"form"`
}

func (h *Httpbin) parse(r *colly.Response) (Page, error) {
	var body httpbinResponse
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return Page{}, err
	}

	page, ok := r.Ctx.GetAny(pageKey).(int)
	if !ok {
		page, _ = strconv.Atoi(body.Form["page"])
	}
	return Page{
		Page:     page,
		Origin:   body.Origin,
		ProxyURL: r.Request.ProxyURL,
	}, nil
}
