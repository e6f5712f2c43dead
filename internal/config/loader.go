package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".crawlproxy"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the on-disk YAML layout. Pointer fields distinguish
// "not set" from zero values so that only keys present in the file
// override defaults.
type File struct {
	ProxyPool   PoolSection  `yaml:"proxy_pool"`
	ProxyTunnel TunnelConfig `yaml:"proxy_tunnel"`
	Crawl       CrawlSection `yaml:"crawl"`
}

// PoolSection is the proxy_pool block.
type PoolSection struct {
	URL              string         `yaml:"url,omitempty"`
	Auth             *bool          `yaml:"auth,omitempty"`
	Username         string         `yaml:"username,omitempty"`
	Password         string         `yaml:"password,omitempty"`
	MinRetryTimes    *int           `yaml:"min_retry_times,omitempty"`
	RandomEnableRate *float64       `yaml:"random_enable_rate,omitempty"`
	Timeout          *time.Duration `yaml:"timeout,omitempty"`
	Extractor        string         `yaml:"extractor,omitempty"`
	ExtractorField   string         `yaml:"extractor_field,omitempty"`
	Async            *bool          `yaml:"async,omitempty"`
	MaxInFlight      *int           `yaml:"max_in_flight,omitempty"`
	Breaker          BreakerSection `yaml:"breaker"`
}

// BreakerSection is the proxy_pool.breaker block.
type BreakerSection struct {
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Failures *int           `yaml:"failures,omitempty"`
	Cooldown *time.Duration `yaml:"cooldown,omitempty"`
}

// CrawlSection is the crawl block used by the example spider.
type CrawlSection struct {
	Pages          *int           `yaml:"pages,omitempty"`
	Delay          *int           `yaml:"delay,omitempty"`
	Concurrency    *int           `yaml:"concurrency,omitempty"`
	RetryTimes     *int           `yaml:"retry_times,omitempty"`
	RequestTimeout *time.Duration `yaml:"request_timeout,omitempty"`
	TargetURL      string         `yaml:"target_url,omitempty"`
	UserAgent      string         `yaml:"user_agent,omitempty"`
	MetricsAddr    string         `yaml:"metrics_addr,omitempty"`
	SaveToDB       *bool          `yaml:"save_to_db,omitempty"`
	DBDir          string         `yaml:"db_dir,omitempty"`
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. .crawlproxy in the current directory
// 3. config.yaml in the XDG config directory ($XDG_CONFIG_HOME/crawlproxy)
// 4. .crawlproxy in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Apply overlays the values present in the file onto c.
func (c *Config) Apply(f *File) {
	if f == nil {
		return
	}

	p := f.ProxyPool
	setString(&c.PoolURL, p.URL)
	setPtr(&c.PoolAuth, p.Auth)
	setString(&c.PoolUsername, p.Username)
	setString(&c.PoolPassword, p.Password)
	setPtr(&c.MinRetryTimes, p.MinRetryTimes)
	setPtr(&c.RandomEnableRate, p.RandomEnableRate)
	setPtr(&c.PoolTimeout, p.Timeout)
	setString(&c.Extractor, p.Extractor)
	setString(&c.ExtractorField, p.ExtractorField)
	setPtr(&c.Async, p.Async)
	setPtr(&c.MaxInFlight, p.MaxInFlight)
	setPtr(&c.BreakerEnabled, p.Breaker.Enabled)
	setPtr(&c.BreakerFailures, p.Breaker.Failures)
	setPtr(&c.BreakerCooldown, p.Breaker.Cooldown)

	c.Tunnel = f.ProxyTunnel

	cr := f.Crawl
	setPtr(&c.Pages, cr.Pages)
	setPtr(&c.Delay, cr.Delay)
	setPtr(&c.Concurrency, cr.Concurrency)
	setPtr(&c.RetryTimes, cr.RetryTimes)
	setPtr(&c.RequestTimeout, cr.RequestTimeout)
	setString(&c.TargetURL, cr.TargetURL)
	setString(&c.UserAgent, cr.UserAgent)
	setString(&c.MetricsAddr, cr.MetricsAddr)
	setPtr(&c.SaveToDB, cr.SaveToDB)
	setString(&c.DBDir, cr.DBDir)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
