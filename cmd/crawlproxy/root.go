package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for crawlproxy.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlproxy",
		Short: "Proxy pool middleware for crawlers",
		Long: `crawlproxy decides for every crawl request whether it should go through a
proxy, fetches one proxy address from a proxy pool service and routes the
request through it.

Requests that have not failed often enough (--min-retry-times) or that lose
the random draw (--random-enable-rate) go out directly. When the pool cannot
deliver, the request goes out without a proxy and the failure is logged.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
