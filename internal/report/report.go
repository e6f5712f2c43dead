package report

import (
	"cmp"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/crawlproxy/internal/database"
	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// Report is the data every writer renders.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	// RunID is the journal run, 0 for the whole journal.
	RunID int64 `json:"run_id"`

	PoolURL string `json:"pool_url,omitempty"`

	// Crawl is nil when the report was built from the journal alone.
	Crawl *Crawl `json:"crawl,omitempty"`

	Decisions Decisions `json:"decisions"`
}

// Crawl summarizes the example spider.
type Crawl struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`

	// Origins counts successful pages per origin address.
	Origins map[string]int `json:"origins,omitempty"`
}

// Failed returns the number of pages that never succeeded.
func (c *Crawl) Failed() int {
	return c.Requested - c.Succeeded
}

// OutcomeCount is the number of decisions with one outcome.
type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

// ProxyCount is how often a proxy was assigned.
type ProxyCount struct {
	Proxy string `json:"proxy"`
	Count int    `json:"count"`
}

// Decisions summarizes the proxy decisions.
type Decisions struct {
	Total int `json:"total"`

	// Outcomes lists every outcome in evaluation order, including zeros.
	Outcomes []OutcomeCount `json:"outcomes"`

	TopProxies []ProxyCount `json:"top_proxies,omitempty"`

	// AvgFetch is the mean duration of evaluations that called the pool.
	AvgFetch time.Duration `json:"avg_fetch_ns"`
}

// Count returns the number of decisions with outcome o.
func (d Decisions) Count(o proxypool.Outcome) int {
	for _, oc := range d.Outcomes {
		if oc.Outcome == o.String() {
			return oc.Count
		}
	}
	return 0
}

// PoolCalls returns the number of decisions that called the pool.
func (d Decisions) PoolCalls() int {
	return d.Count(proxypool.OutcomeAssigned) + d.Count(proxypool.OutcomeUnavailable)
}

// New builds a report from a journal summary. run may be nil.
func New(s *database.Summary, run *database.Run) *Report {
	r := &Report{
		GeneratedAt: time.Now(),
	}
	if run != nil {
		r.RunID = run.ID
		r.PoolURL = run.PoolURL
	}
	if s == nil {
		r.Decisions.Outcomes = outcomeCounts(nil)
		return r
	}

	if r.RunID == 0 {
		r.RunID = s.RunID
	}
	r.Decisions = Decisions{
		Total:    s.Total,
		Outcomes: outcomeCounts(s.ByOutcome),
		AvgFetch: s.AvgFetch,
	}
	for _, p := range s.TopProxies {
		r.Decisions.TopProxies = append(r.Decisions.TopProxies, ProxyCount{Proxy: p.Proxy, Count: p.Count})
	}
	return r
}

// WithCrawl attaches spider results.
func (r *Report) WithCrawl(requested, succeeded int, origins map[string]int) *Report {
	r.Crawl = &Crawl{
		Requested: requested,
		Succeeded: succeeded,
		Origins:   origins,
	}
	return r
}

func outcomeCounts(by map[proxypool.Outcome]int) []OutcomeCount {
	out := make([]OutcomeCount, 0, 4)
	for o := proxypool.OutcomeRetryGate; o <= proxypool.OutcomeUnavailable; o++ {
		out = append(out, OutcomeCount{Outcome: o.String(), Count: by[o]})
	}
	return out
}

// sortedOrigins returns origins by count, then address.
func sortedOrigins(origins map[string]int) []string {
	keys := slices.Collect(maps.Keys(origins))
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(origins[b], origins[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}

var titleCaser = cases.Title(language.English)

// outcomeTitle turns "retry-gate" into "Retry Gate".
func outcomeTitle(label string) string {
	return titleCaser.String(strings.ReplaceAll(label, "-", " "))
}

// percent formats part of total, "-" when total is zero.
func percent(part, total int) string {
	if total == 0 {
		return "-"
	}
	return strconv.FormatFloat(float64(part)*100/float64(total), 'f', 1, 64) + "%"
}
