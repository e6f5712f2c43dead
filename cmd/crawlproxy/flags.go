package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/crawlproxy/internal/config"
	"github.com/nao1215/crawlproxy/internal/log"
	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// addPoolFlags registers the proxy pool flags shared by crawl and fetch.
func addPoolFlags(cmd *cobra.Command) {
	d := config.NewConfig()
	f := cmd.Flags()

	f.StringP("config", "c", "",
		"Configuration file path (default: .crawlproxy in current, XDG config or home directory)")

	f.String("pool-url", "", "Proxy pool endpoint returning one proxy address per request")
	f.Bool("pool-auth", d.PoolAuth, "Use HTTP basic auth for the proxy pool")
	f.String("pool-username", "", "Proxy pool basic auth user")
	f.String("pool-password", "", "Proxy pool basic auth password")
	f.Duration("pool-timeout", d.PoolTimeout, "Timeout for each proxy pool call (0 = none)")

	f.Int("min-retry-times", d.MinRetryTimes,
		"Use a proxy only after a request failed this many times (0 = from the first attempt)")
	f.Float64("random-enable-rate", d.RandomEnableRate,
		"Probability of using a proxy for a request, between 0 and 1")

	f.String("extractor", d.Extractor,
		"How to read the pool response ("+strings.Join(proxypool.Extractors(), ", ")+")")
	f.String("extractor-field", d.ExtractorField, "JSON field holding the address for the json extractor")

	f.Bool("async", d.Async, "Fetch proxies on worker goroutines")
	f.Int("max-in-flight", d.MaxInFlight, "Maximum concurrent pool calls in async mode")
	f.Bool("breaker", d.BreakerEnabled, "Stop calling a failing proxy pool for a cooldown")
}

// buildConfig layers defaults, the configuration file and flags.
// Only flags the user set override file values.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	if cmd.Flags().Lookup("config") != nil {
		cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
		if err != nil {
			return nil, err
		}
	}

	// An explicit path must exist; the default locations are optional.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.Apply(file)
		cfg.ConfigFilePath = configPath
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	fs := cmd.Flags()
	err = errors.Join(
		flagValue(fs, "pool-url", &cfg.PoolURL, fs.GetString),
		flagValue(fs, "pool-auth", &cfg.PoolAuth, fs.GetBool),
		flagValue(fs, "pool-username", &cfg.PoolUsername, fs.GetString),
		flagValue(fs, "pool-password", &cfg.PoolPassword, fs.GetString),
		flagValue(fs, "pool-timeout", &cfg.PoolTimeout, fs.GetDuration),
		flagValue(fs, "min-retry-times", &cfg.MinRetryTimes, fs.GetInt),
		flagValue(fs, "random-enable-rate", &cfg.RandomEnableRate, fs.GetFloat64),
		flagValue(fs, "extractor", &cfg.Extractor, fs.GetString),
		flagValue(fs, "extractor-field", &cfg.ExtractorField, fs.GetString),
		flagValue(fs, "async", &cfg.Async, fs.GetBool),
		flagValue(fs, "max-in-flight", &cfg.MaxInFlight, fs.GetInt),
		flagValue(fs, "breaker", &cfg.BreakerEnabled, fs.GetBool),
		flagValue(fs, "pages", &cfg.Pages, fs.GetInt),
		flagValue(fs, "delay", &cfg.Delay, fs.GetInt),
		flagValue(fs, "concurrency", &cfg.Concurrency, fs.GetInt),
		flagValue(fs, "retry-times", &cfg.RetryTimes, fs.GetInt),
		flagValue(fs, "request-timeout", &cfg.RequestTimeout, fs.GetDuration),
		flagValue(fs, "target-url", &cfg.TargetURL, fs.GetString),
		flagValue(fs, "user-agent", &cfg.UserAgent, fs.GetString),
		flagValue(fs, "metrics-addr", &cfg.MetricsAddr, fs.GetString),
		flagValue(fs, "db-dir", &cfg.DBDir, fs.GetString),
		flagValue(fs, "markdown", &cfg.MarkdownReport, fs.GetBool),
	)
	if err != nil {
		return nil, err
	}

	if fs.Lookup("no-db") != nil && fs.Changed("no-db") {
		noDB, err := fs.GetBool("no-db")
		if err != nil {
			return nil, err
		}
		cfg.SaveToDB = !noDB
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.JSONLog = getBoolFlag(cmd, "log-json")
	return cfg, nil
}

// flagValue copies a flag into dst when the command has it and the user set it.
func flagValue[T any](fs *pflag.FlagSet, name string, dst *T, get func(string) (T, error)) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// getBoolFlag reads a flag from the command or the root persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the redacting logger used by every command.
// level applies unless --verbose is set.
func setupLogger(w io.Writer, cfg *config.Config, level slog.Level) *slog.Logger {
	return log.New(w, log.Options{Verbose: cfg.Verbose, JSON: cfg.JSONLog, Level: level})
}

// buildFetcher wraps the pool client with the optional breaker and async layers.
func buildFetcher(cfg *config.Config, pc proxypool.Config, logger *slog.Logger, metrics *proxypool.Metrics) proxypool.Fetcher {
	var f proxypool.Fetcher = proxypool.NewClient(pc,
		proxypool.WithClientLogger(logger),
		proxypool.WithClientMetrics(metrics),
	)
	if cfg.BreakerEnabled {
		f = proxypool.NewBreakerFetcher(f, cfg.BreakerFailures, cfg.BreakerCooldown, logger)
	}
	if cfg.Async {
		f = proxypool.NewAsyncFetcher(f, cfg.MaxInFlight)
	}
	return f
}

// buildPolicy creates the decision engine. recorder may be nil.
func buildPolicy(cfg *config.Config, logger *slog.Logger, metrics *proxypool.Metrics, recorder proxypool.Recorder) (*proxypool.Policy, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	opts := []proxypool.Option{
		proxypool.WithFetcher(buildFetcher(cfg, pc, logger, metrics)),
		proxypool.WithLogger(logger),
		proxypool.WithMetrics(metrics),
	}
	if recorder != nil {
		opts = append(opts, proxypool.WithRecorder(recorder))
	}
	return proxypool.New(pc, opts...)
}
