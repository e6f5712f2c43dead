package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// SimpleWriter outputs human-readable plain text.
type SimpleWriter struct {
	baseWriter

	// verbose also lists every origin address.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in plain text.
func (w *SimpleWriter) Write(r *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, r)
	w.writeDecisions(&sb, r)
	w.writeCrawl(&sb, r)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, r *Report) {
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	sb.WriteString("                   CRAWLPROXY SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	if r.RunID != 0 {
		fmt.Fprintf(sb, "Run:        #%d\n", r.RunID)
	} else {
		sb.WriteString("Run:        all runs\n")
	}
	if r.PoolURL != "" {
		fmt.Fprintf(sb, "Proxy pool: %s\n", r.PoolURL)
	}
	fmt.Fprintf(sb, "Generated:  %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
}

func (w *SimpleWriter) writeDecisions(sb *strings.Builder, r *Report) {
	d := r.Decisions

	sb.WriteString("PROXY DECISIONS\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	for _, oc := range d.Outcomes {
		fmt.Fprintf(sb, "  %-12s %6d  %6s\n", outcomeTitle(oc.Outcome)+":", oc.Count, percent(oc.Count, d.Total))
	}
	fmt.Fprintf(sb, "  %-12s %6d\n", "Total:", d.Total)
	if d.PoolCalls() > 0 {
		fmt.Fprintf(sb, "  Average pool fetch: %s\n", d.AvgFetch.Round(100*time.Microsecond))
	}
	sb.WriteString("\n")

	if len(d.TopProxies) > 0 {
		sb.WriteString("TOP PROXIES\n")
		sb.WriteString(strings.Repeat("-", 60))
		sb.WriteString("\n")
		for _, p := range d.TopProxies {
			fmt.Fprintf(sb, "  %-40s %6d\n", p.Proxy, p.Count)
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeCrawl(sb *strings.Builder, r *Report) {
	if r.Crawl == nil {
		return
	}
	c := r.Crawl

	sb.WriteString("CRAWL\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Requested: %d\n", c.Requested)
	fmt.Fprintf(sb, "  Succeeded: %d\n", c.Succeeded)
	fmt.Fprintf(sb, "  Failed:    %d\n", c.Failed())
	fmt.Fprintf(sb, "  Origins:   %d distinct\n", len(c.Origins))

	if w.verbose {
		for _, o := range sortedOrigins(c.Origins) {
			fmt.Fprintf(sb, "    [+] %s (%d)\n", o, c.Origins[o])
		}
	}
	sb.WriteString("\n")
}
