package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlproxy/internal/config"
	"github.com/nao1215/crawlproxy/internal/database"
	"github.com/nao1215/crawlproxy/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Summarize recorded proxy decisions",
		Long: `History reads the decision journal written by crawl and summarizes it:
how many requests each gate skipped, how often the pool delivered a proxy
and which proxies were handed out most.

Examples:
  # Summary of the latest run
  crawlproxy history

  # All runs as Markdown
  crawlproxy history --all --markdown

  # A specific run plus its 20 newest decisions
  crawlproxy history --run 3 --recent 20`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the decision journal")
	cmd.Flags().Int64("run", 0, "Run to summarize (default: latest)")
	cmd.Flags().Bool("all", false, "Summarize all runs")
	cmd.Flags().Int("top", topProxies, "Number of proxies to list")
	cmd.Flags().Int("recent", 0, "Also list this many of the newest decisions")
	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	cmd.MarkFlagsMutuallyExclusive("run", "all")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	fs := cmd.Flags()
	dbDir, err := fs.GetString("db-dir")
	if err != nil {
		return err
	}
	runID, err := fs.GetInt64("run")
	if err != nil {
		return err
	}
	all, err := fs.GetBool("all")
	if err != nil {
		return err
	}
	top, err := fs.GetInt("top")
	if err != nil {
		return err
	}
	recent, err := fs.GetInt("recent")
	if err != nil {
		return err
	}
	asJSON, err := fs.GetBool("json")
	if err != nil {
		return err
	}
	asMarkdown, err := fs.GetBool("markdown")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	journal, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return err
	}
	defer journal.Close()

	var run *database.Run
	if !all {
		if runID == 0 {
			runID, err = journal.LatestRun(ctx)
			if errors.Is(err, database.ErrRunNotFound) {
				return errors.New("the journal has no runs yet (run crawl first)")
			}
			if err != nil {
				return err
			}
		}
		run, err = journal.Run(ctx, runID)
		if err != nil {
			return err
		}
	} else {
		runID = 0
	}

	summary, err := journal.Summarize(ctx, runID, top)
	if err != nil {
		return err
	}

	r := report.New(summary, run)
	if run != nil && !run.FinishedAt.IsZero() {
		r.WithCrawl(run.Requested, run.Succeeded, nil)
	}

	out := cmd.OutOrStdout()
	if _, err := selectWriter(out, asMarkdown, asJSON, getBoolFlag(cmd, "verbose")).Write(r); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if recent > 0 && !asJSON {
		entries, err := journal.Recent(ctx, runID, recent)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "NEWEST DECISIONS")
		for _, e := range entries {
			proxy := e.Proxy
			if proxy == "" {
				proxy = "-"
			}
			fmt.Fprintf(out, "  %s  %-12s retry=%d  %s",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Outcome, e.RetryTimes, proxy)
			if e.Error != "" {
				fmt.Fprintf(out, "  (%s)", e.Error)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
