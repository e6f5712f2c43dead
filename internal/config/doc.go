// Package config holds the crawlproxy configuration: the proxy pool
// settings consumed by the decision engine, the reserved proxy tunnel
// settings, and the knobs of the example crawl.
//
// Values are resolved in three layers: NewConfig defaults, then the YAML
// configuration file (see LoadConfigFile), then command line flags. The
// result is validated once with Validate and is read-only afterwards.
package config
