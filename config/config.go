// Package config loads the runtime configuration for the ingestion
// supervisor, relay listener, and monitor task. Config is read from a
// YAML file with PRISM_* environment variable overrides, grounded in the
// viper Load/Validate shape used elsewhere in the reference corpus.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration.
type Config struct {
	Pairs           []string      `mapstructure:"pairs"`
	Exchanges       []string      `mapstructure:"exchanges"`
	Workers         int           `mapstructure:"workers"`
	ThreadStackMiB  int           `mapstructure:"thread_stack_mib"`
	RelayAddr       string        `mapstructure:"relay_addr"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	SlackWebhookURL string        `mapstructure:"slack_webhook_url"`
	Thresholds      Thresholds    `mapstructure:"thresholds"`
}

// Thresholds is the arbitrage-counting percentage cutoffs, expressed in
// the config file as fractions (0.0025 == 0.25%).
type Thresholds struct {
	O25 float64 `mapstructure:"o25"`
	O20 float64 `mapstructure:"o20"`
	O15 float64 `mapstructure:"o15"`
	O10 float64 `mapstructure:"o10"`
	O05 float64 `mapstructure:"o05"`
}

// Defaults matches this system's compile-time constants: 12 workers, a 64 MiB
// worker thread stack, relay on 0.0.0.0:6969, a 10 minute monitor tick.
func Defaults() Config {
	return Config{
		Pairs:          []string{"BTC-USD", "ETH-USD"},
		Exchanges:      []string{"coinbase", "kraken", "bitstamp", "gemini"},
		Workers:        12,
		ThreadStackMiB: 64,
		RelayAddr:      "0.0.0.0:6969",
		MonitorInterval: 10 * time.Minute,
		Thresholds: Thresholds{
			O25: 0.0025,
			O20: 0.0020,
			O15: 0.0015,
			O10: 0.0010,
			O05: 0.0005,
		},
	}
}

// Load reads config from a YAML file with env var overrides. An empty
// path skips the file read and returns Defaults with env overrides
// applied, so a deployment with no file on disk still works from env alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := Defaults()
	v.SetDefault("pairs", def.Pairs)
	v.SetDefault("exchanges", def.Exchanges)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("thread_stack_mib", def.ThreadStackMiB)
	v.SetDefault("relay_addr", def.RelayAddr)
	v.SetDefault("monitor_interval", def.MonitorInterval)
	v.SetDefault("slack_webhook_url", def.SlackWebhookURL)
	v.SetDefault("thresholds.o25", def.Thresholds.O25)
	v.SetDefault("thresholds.o20", def.Thresholds.O20)
	v.SetDefault("thresholds.o15", def.Thresholds.O15)
	v.SetDefault("thresholds.o10", def.Thresholds.O10)
	v.SetDefault("thresholds.o05", def.Thresholds.O05)

	v.SetEnvPrefix("PRISM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the system assumes hold at
// task start. A Configuration-class failure panics per the error
// handling design rather than being retried.
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: pairs must not be empty")
	}
	if len(c.Exchanges) < 2 {
		return fmt.Errorf("config: exchanges must list at least 2 exchanges, got %d", len(c.Exchanges))
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be > 0")
	}
	if c.ThreadStackMiB < 64 {
		return fmt.Errorf("config: thread_stack_mib must be >= 64, got %d", c.ThreadStackMiB)
	}
	if c.RelayAddr == "" {
		return fmt.Errorf("config: relay_addr must not be empty")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("config: monitor_interval must be > 0")
	}
	return nil
}

// MustLoad calls Load and Validate and panics on any error — the intended
// call site is task start (cmd/prismd's main), where a configuration
// error is always fatal per the error handling design.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
