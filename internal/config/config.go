// Package config provides configuration management for the paper trading
// service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultInitialCash is used when portfolio.initial_cash is unset
	defaultInitialCash = 100000.0
	// defaultMaxOpenPositions is used when portfolio.max_open_positions is unset
	defaultMaxOpenPositions = 6
	// defaultSessionInterval is used when session.interval is unset
	defaultSessionInterval = 15 * time.Minute
	// defaultMaxOpportunities caps how many candidates the advisor is asked for
	defaultMaxOpportunities = 3
	// defaultStoragePath is used when storage.path is unset
	defaultStoragePath = "data/paperledger.db"
	// defaultDashboardPort is used when dashboard.port is unset
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Portfolio   PortfolioConfig   `yaml:"portfolio"`
	Market      MarketConfig      `yaml:"market"`
	Advisor     AdvisorConfig     `yaml:"advisor"`
	Session     SessionConfig     `yaml:"session"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// PortfolioConfig defines the paper portfolio parameters.
type PortfolioConfig struct {
	InitialCash      float64 `yaml:"initial_cash"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
}

// MarketConfig defines market data provider settings.
type MarketConfig struct {
	Provider string `yaml:"provider"` // tradier | yahoo
	APIKey   string `yaml:"api_key"`
	Sandbox  bool   `yaml:"sandbox"`
}

// AdvisorConfig defines the language model advisor settings.
type AdvisorConfig struct {
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	MaxOpportunities int    `yaml:"max_opportunities"`
}

// SessionConfig defines how often the service runs and what it watches.
type SessionConfig struct {
	Interval string   `yaml:"interval"` // Go duration, e.g. "15m"
	Symbols  []string `yaml:"symbols"`  // candidate universe shown to the advisor
}

// StorageConfig defines persistence settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only HTTP API settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads, expands, and validates the configuration file. Environment
// variables in the file (e.g. ${TRADIER_API_KEY}) are expanded before
// parsing.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Portfolio.InitialCash == 0 {
		c.Portfolio.InitialCash = defaultInitialCash
	}
	if c.Portfolio.MaxOpenPositions == 0 {
		c.Portfolio.MaxOpenPositions = defaultMaxOpenPositions
	}
	if c.Market.Provider == "" {
		c.Market.Provider = "tradier"
	}
	if c.Advisor.MaxOpportunities == 0 {
		c.Advisor.MaxOpportunities = defaultMaxOpportunities
	}
	if c.Session.Interval == "" {
		c.Session.Interval = defaultSessionInterval.String()
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	if c.Portfolio.InitialCash <= 0 {
		return fmt.Errorf("portfolio.initial_cash must be positive")
	}
	if c.Portfolio.MaxOpenPositions < 1 {
		return fmt.Errorf("portfolio.max_open_positions must be at least 1")
	}

	switch c.Market.Provider {
	case "tradier":
		if c.Market.APIKey == "" {
			return fmt.Errorf("market.api_key is required for the tradier provider")
		}
	case "yahoo":
		// Keyless; serves quotes only, so positions cannot be revalued.
	default:
		return fmt.Errorf("market.provider must be 'tradier' or 'yahoo'")
	}

	if c.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required")
	}

	if _, err := c.SessionInterval(); err != nil {
		return fmt.Errorf("session.interval: %w", err)
	}
	if len(c.Session.Symbols) == 0 {
		return fmt.Errorf("session.symbols must list at least one symbol")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port < 1 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	return nil
}

// SessionInterval returns the parsed session interval.
func (c *Config) SessionInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Session.Interval)
	if err != nil {
		return 0, err
	}
	if d < time.Minute {
		return 0, fmt.Errorf("must be at least 1m (got %s)", d)
	}
	return d, nil
}
