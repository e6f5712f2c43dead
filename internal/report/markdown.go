package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// MarkdownWriter outputs reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r)
	w.writeDecisions(md, r)
	w.writeProxies(md, r)
	w.writeCrawl(md, r)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *Report) {
	md.H1("crawlproxy Report")
	md.PlainText("")

	run := "all runs"
	if r.RunID != 0 {
		run = "#" + strconv.FormatInt(r.RunID, 10)
	}
	pool := r.PoolURL
	if pool == "" {
		pool = "-"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", run},
			{"Proxy Pool", "`" + pool + "`"},
			{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeDecisions(md *markdown.Markdown, r *Report) {
	d := r.Decisions

	md.H2("Proxy Decisions")
	md.PlainText("")

	rows := make([][]string, 0, len(d.Outcomes)+1)
	for _, oc := range d.Outcomes {
		rows = append(rows, []string{outcomeTitle(oc.Outcome), strconv.Itoa(oc.Count), percent(oc.Count, d.Total)})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(d.Total) + "**", ""})
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count", "Share"},
		Rows:   rows,
	})
	md.PlainText("")

	if d.Total > 0 {
		w.writePieChart(md, d)
	}
	if d.PoolCalls() > 0 {
		md.PlainTextf("Average pool fetch: %s", d.AvgFetch.Round(100*time.Microsecond))
		md.PlainText("")
	}

	w.writeAlert(md, d)
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, d Decisions) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Decision Outcomes"),
		piechart.WithShowData(true),
	)
	for _, oc := range d.Outcomes {
		if oc.Count > 0 {
			chart.LabelAndIntValue(outcomeTitle(oc.Outcome), uint64(oc.Count)) //nolint:gosec // counts are non-negative
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, d Decisions) {
	unavailable := d.Count(proxypool.OutcomeUnavailable)
	switch {
	case d.Total == 0:
		md.Note("No proxy decisions were recorded.")
	case unavailable > 0 && unavailable == d.PoolCalls():
		md.Cautionf("The proxy pool never returned a proxy (%d failed fetches).", unavailable)
	case unavailable > 0:
		md.Warningf("%d of %d pool fetches failed; those requests went out directly.", unavailable, d.PoolCalls())
	default:
		md.Tip("Every pool fetch returned a proxy.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeProxies(md *markdown.Markdown, r *Report) {
	if len(r.Decisions.TopProxies) == 0 {
		return
	}

	md.H2("Top Proxies")
	md.PlainText("")

	rows := make([][]string, len(r.Decisions.TopProxies))
	for i, p := range r.Decisions.TopProxies {
		rows[i] = []string{"`" + p.Proxy + "`", strconv.Itoa(p.Count)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Proxy", "Assigned"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCrawl(md *markdown.Markdown, r *Report) {
	if r.Crawl == nil {
		return
	}
	c := r.Crawl

	md.H2("Crawl")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Requested", "Succeeded", "Failed"},
		Rows:   [][]string{{strconv.Itoa(c.Requested), strconv.Itoa(c.Succeeded), strconv.Itoa(c.Failed())}},
	})
	md.PlainText("")

	if len(c.Origins) == 0 {
		return
	}
	origins := sortedOrigins(c.Origins)
	items := make([]string, len(origins))
	for i, o := range origins {
		items[i] = "`" + o + "`: " + strconv.Itoa(c.Origins[o])
	}
	md.H3("Origins seen by the target")
	md.PlainText("")
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [crawlproxy](https://github.com/nao1215/crawlproxy)*")
}
