package proxypool

// Request is the view of an outbound crawl request the engine needs.
// The host framework owns the request; the engine only reads the retry
// count and writes the proxy during a single evaluation.
type Request interface {
	// RetryTimes returns how many times the request has already failed.
	// Requests that were never retried return 0.
	RetryTimes() int

	// Proxy returns the proxy URL currently set, "" if none.
	Proxy() string

	// SetProxy sets the proxy URL; "" clears it.
	SetProxy(proxyURL string)
}

// Meta is a Request backed by plain fields, for hosts that keep request
// metadata in their own structures.
type Meta struct {
	Retries  int
	ProxyURL string
}

// RetryTimes implements Request.
func (m *Meta) RetryTimes() int { return m.Retries }

// Proxy implements Request.
func (m *Meta) Proxy() string { return m.ProxyURL }

// SetProxy implements Request.
func (m *Meta) SetProxy(proxyURL string) { m.ProxyURL = proxyURL }

// Apply routes req through the proxy at addr.
func Apply(req Request, addr string) {
	req.SetProxy("http://" + addr)
}

// Clear removes any proxy from req.
func Clear(req Request) {
	req.SetProxy("")
}
