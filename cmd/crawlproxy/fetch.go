package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Ask the proxy pool for proxies and print them",
		Long: `Fetch calls the proxy pool directly, bypassing the retry and random gates,
and prints one proxy URL per line. Use it to check the pool configuration
before crawling.

Examples:
  crawlproxy fetch --pool-url http://localhost:5555/random
  crawlproxy fetch -n 10 --parallel 4 --extractor json --extractor-field proxy`,
		Args: cobra.NoArgs,
		RunE: runFetchCmd,
	}

	addPoolFlags(cmd)
	cmd.Flags().IntP("count", "n", 1, "Number of proxies to fetch")
	cmd.Flags().IntP("parallel", "P", 4, "Number of concurrent pool calls")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	pc, err := cfg.PoolConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}
	parallel, err := cmd.Flags().GetInt("parallel")
	if err != nil {
		return err
	}
	if count <= 0 || parallel <= 0 {
		return errors.New("--count and --parallel must be positive")
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg, slog.LevelWarn)
	fetcher := buildFetcher(cfg, pc, logger, nil)

	addrs := make([]string, count)
	var succeeded atomic.Int64

	var g errgroup.Group
	g.SetLimit(parallel)
	for i := range count {
		g.Go(func() error {
			addr, err := fetcher.Fetch(cmd.Context())
			if err != nil {
				logger.Error("can not get proxy from proxy pool", "attempt", i+1, "error", err)
				return err
			}
			addrs[i] = addr
			succeeded.Add(1)
			return nil
		})
	}
	waitErr := g.Wait()

	out := cmd.OutOrStdout()
	for _, addr := range addrs {
		if addr != "" {
			fmt.Fprintf(out, "http://%s\n", addr)
		}
	}

	if succeeded.Load() == 0 {
		return fmt.Errorf("proxy pool returned no proxy: %w", waitErr)
	}
	if waitErr != nil {
		logger.Warn("some fetches failed", "succeeded", succeeded.Load(), "requested", count)
	}
	return nil
}
