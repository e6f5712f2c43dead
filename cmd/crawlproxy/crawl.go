package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nao1215/crawlproxy/internal/config"
	"github.com/nao1215/crawlproxy/internal/crawler"
	"github.com/nao1215/crawlproxy/internal/database"
	"github.com/nao1215/crawlproxy/internal/proxypool"
	"github.com/nao1215/crawlproxy/internal/report"
	"github.com/nao1215/crawlproxy/internal/spider"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "crawlproxy"

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// topProxies is the number of proxies listed in summaries.
const topProxies = 5

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the httpbin example spider through the proxy pool",
		Long: `Crawl posts a numbered form to httpbin's delay endpoint once per page and
routes every request through the proxy decision engine. httpbin echoes the
address the request came from, so the log shows which proxy served it.

Failed requests are retried (--retry-times). Each retry raises the retry count
that the --min-retry-times gate compares against.

Examples:
  # Proxy every request
  crawlproxy crawl --pool-url http://localhost:5555/random

  # Proxy only retried requests, and only half of them
  crawlproxy crawl --pool-url http://localhost:5555/random \
    --min-retry-times 1 --random-enable-rate 0.5

  # Expose prometheus metrics while crawling
  crawlproxy crawl --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	addPoolFlags(cmd)

	d := config.NewConfig()
	cmd.Flags().IntP("pages", "p", d.Pages, "Number of requests to send")
	cmd.Flags().Int("delay", d.Delay, "Delay in seconds requested from httpbin")
	cmd.Flags().Int("concurrency", d.Concurrency, "Number of parallel requests")
	cmd.Flags().Int("retry-times", d.RetryTimes, "Retries per failed request")
	cmd.Flags().Duration("request-timeout", d.RequestTimeout, "Timeout for each crawl request")
	cmd.Flags().String("target-url", d.TargetURL, "Base URL of the httpbin service")
	cmd.Flags().String("user-agent", d.UserAgent, "User-Agent header")
	cmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address during the crawl")
	cmd.Flags().String("db-dir", d.DBDir, "Directory of the decision journal")
	cmd.Flags().Bool("no-db", false, "Do not record decisions in the journal")
	cmd.Flags().BoolP("markdown", "m", false, "Print the summary as Markdown")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Per-page results are logged at Info.
	logger := setupLogger(cmd.ErrOrStderr(), cfg, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd.OutOrStdout(), cfg, logger)
}

// runCrawl wires the engine into the spider, runs it and prints a summary.
func runCrawl(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := proxypool.NewMetrics(reg, metricsNamespace)

	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var (
		journal  *database.Journal
		runID    int64
		tally    *report.Tally
		recorder proxypool.Recorder
	)
	if cfg.SaveToDB {
		var err error
		journal, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()

		runID, err = journal.StartRun(ctx, cfg.PoolURL)
		if err != nil {
			return err
		}
		recorder = journal
		logger.Info("journal opened", "path", journal.Path(), "run", runID)
	} else {
		tally = report.NewTally()
		recorder = tally
	}

	policy, err := buildPolicy(cfg, logger, metrics, recorder)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	sp := spider.NewHttpbin(
		spider.WithBaseURL(cfg.TargetURL),
		spider.WithPages(cfg.Pages),
		spider.WithDelay(cfg.Delay),
		spider.WithConcurrency(cfg.Concurrency),
		spider.WithRequestTimeout(cfg.RequestTimeout),
		spider.WithUserAgent(cfg.UserAgent),
		spider.WithLogger(logger),
		spider.WithMiddleware(crawler.New(policy,
			crawler.WithRetryTimes(cfg.RetryTimes),
			crawler.WithLogger(logger),
		)),
	)

	fmt.Fprintf(out, "Crawling %s (%d pages)...\n", sp.URL(), cfg.Pages)
	start := time.Now()
	stats, runErr := sp.Run(ctx)
	fmt.Fprintf(out, "Crawl finished in %s\n\n", time.Since(start).Round(time.Millisecond))

	// The run is closed even when the crawl was interrupted.
	bg := context.WithoutCancel(ctx)

	var (
		summary *database.Summary
		run     *database.Run
	)
	if journal != nil {
		if err := journal.FinishRun(bg, runID, stats.Requested, stats.Succeeded); err != nil {
			logger.Error("failed to finish run", "run", runID, "error", err)
		}
		summary, err = journal.Summarize(bg, runID, topProxies)
		if err != nil {
			return err
		}
		run, err = journal.Run(bg, runID)
		if err != nil {
			return err
		}
	} else {
		summary = tally.Summary(topProxies)
	}

	r := report.New(summary, run).WithCrawl(stats.Requested, stats.Succeeded, stats.Origins)
	if _, err := selectWriter(out, cfg.MarkdownReport, false, cfg.Verbose).Write(r); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// serveMetrics serves reg on addr/metrics until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}

// selectWriter picks the report format.
func selectWriter(out io.Writer, markdown, json, verbose bool) report.Writer {
	switch {
	case json:
		return report.NewJSONWriter(out, report.WithPrettyPrint())
	case markdown:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(verbose))
	}
}
