package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gapper-terminal/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// Default returns a configuration with every field populated.
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{}}
	c.ApplyDefaults()
	return c
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero field that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "gapper-terminal"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:8700"
	}
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = 10
	}
	if c.Backend.RequestsPerSecond == 0 {
		c.Backend.RequestsPerSecond = 20
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = 10
	}

	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = 6
	}
	if c.Stream.BackoffInitialMillis == 0 {
		c.Stream.BackoffInitialMillis = 500
	}
	if c.Stream.BackoffMaxMillis == 0 {
		c.Stream.BackoffMaxMillis = 8000
	}
	if c.Stream.PollIntervalSeconds == 0 {
		c.Stream.PollIntervalSeconds = 15
	}
	if c.Stream.EventBuffer == 0 {
		c.Stream.EventBuffer = 256
	}

	if c.Cache.CardCapacity == 0 {
		c.Cache.CardCapacity = 50
	}
	if c.Cache.ETagCapacity == 0 {
		c.Cache.ETagCapacity = 50
	}
	if c.Cache.ChannelHistory == 0 {
		c.Cache.ChannelHistory = 100
	}
	if c.Cache.LiveFeedHistory == 0 {
		c.Cache.LiveFeedHistory = 200
	}

	if c.Interpreter.MaxTickers == 0 {
		c.Interpreter.MaxTickers = 6
	}
	if c.Interpreter.RecentTickerCap == 0 {
		c.Interpreter.RecentTickerCap = 20
	}

	if c.Scan.Limit == 0 {
		c.Scan.Limit = 10
	}

	if c.Market.MIC == "" {
		c.Market.MIC = "XNYS"
	}
	if c.Market.StaleAfterSeconds == 0 {
		c.Market.StaleAfterSeconds = 300
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		c.Storage.DBPath = "gapper_terminal.db"
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8710
	}
	if c.Grpc.Host == "" {
		c.Grpc.Host = "127.0.0.1"
	}
	if c.Grpc.Port == 0 {
		c.Grpc.Port = 8711
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}

	// Backend
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend base_url must be an absolute http(s) URL, got '%s'", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Backend.RequestsPerSecond < 0 || c.Backend.Burst < 0 {
		return fmt.Errorf("rate limit values cannot be negative")
	}

	// Stream
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative")
	}
	if c.Stream.BackoffInitialMillis <= 0 || c.Stream.BackoffMaxMillis < c.Stream.BackoffInitialMillis {
		return fmt.Errorf("backoff must satisfy 0 < initial (%d) <= max (%d)", c.Stream.BackoffInitialMillis, c.Stream.BackoffMaxMillis)
	}
	if c.Stream.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}

	// Caches
	if c.Cache.CardCapacity <= 0 || c.Cache.ETagCapacity <= 0 {
		return fmt.Errorf("cache capacities must be greater than 0")
	}
	if c.Cache.ChannelHistory <= 0 || c.Cache.LiveFeedHistory <= 0 {
		return fmt.Errorf("channel histories must be greater than 0")
	}

	if c.Interpreter.MaxTickers <= 0 {
		return fmt.Errorf("max tickers must be greater than 0")
	}
	if c.Scan.Limit <= 0 {
		return fmt.Errorf("scan limit must be greater than 0")
	}
	if c.Market.StaleAfterSeconds <= 0 {
		return fmt.Errorf("stale_after_seconds must be greater than 0")
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported database type '%s'", c.Storage.DBType)
	}

	// Surfaces
	if c.Server.Enabled && (c.Server.Port <= 1024 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Server.Port)
	}
	if c.Grpc.Enabled && (c.Grpc.Port <= 1024 || c.Grpc.Port > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.Grpc.Port)
	}

	return nil
}

// -----------------------------------------------------------------------------

// Location returns the configured display time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
