// Package config loads betsync settings from defaults, an optional YAML file,
// a .env file and the process environment, in increasing priority.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger storage backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds all configuration for betsync
type Config struct {
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Channel ChannelConfig `yaml:"channel"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Debug   bool          `yaml:"debug"`
}

// APIConfig configures the HTTP client
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`     // per attempt
	MaxRetries     int           `yaml:"max_retries"` // 0 disables retries
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SingleFlight    bool          `yaml:"single_flight"`
}

// ChannelConfig configures the push channel
type ChannelConfig struct {
	URL                  string        `yaml:"url"`
	ReconnectBase        time.Duration `yaml:"reconnect_base"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// LedgerConfig configures lineup persistence
type LedgerConfig struct {
	Backend    string `yaml:"backend"` // sqlite | file | memory
	Path       string `yaml:"path"`    // database file or directory
	StorageKey string `yaml:"storage_key"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
		},
		Cache: CacheConfig{
			TTL:             5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Channel: ChannelConfig{
			ReconnectBase:        5 * time.Second,
			MaxReconnectAttempts: 5,
		},
		Ledger: LedgerConfig{
			Backend:    BackendSQLite,
			Path:       "./betsync.db",
			StorageKey: "betsync_saved_lineups",
		},
	}
}

// Load reads configPath (optional, may be empty or missing), then .env in the
// working directory, then the environment
func Load(configPath string) (*Config, error) {
	return LoadFrom(configPath, ".env")
}

// LoadFrom is Load with an explicit .env path
func LoadFrom(configPath, envFile string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadYAML(configPath); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine; variables can still come from the environment.
	if err := loadEnvFile(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadYAML overlays the file at path onto c. Unknown fields are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// Empty and comment-only files decode to EOF.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays BETSYNC_* variables
func (c *Config) applyEnv() error {
	var errs []string

	str := func(key string, dst *string) {
		*dst = getEnv(key, *dst)
	}
	dur := func(key string, dst *time.Duration) {
		if v := getEnv(key, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := getEnv(key, ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := getEnv(key, ""); v != "" {
			*dst = strings.ToLower(v) == "true" || v == "1"
		}
	}

	str("BETSYNC_API_BASE_URL", &c.API.BaseURL)
	dur("BETSYNC_API_TIMEOUT", &c.API.Timeout)
	num("BETSYNC_MAX_RETRIES", &c.API.MaxRetries)
	dur("BETSYNC_RETRY_BASE_DELAY", &c.API.RetryBaseDelay)

	dur("BETSYNC_CACHE_TTL", &c.Cache.TTL)
	dur("BETSYNC_CACHE_CLEANUP_INTERVAL", &c.Cache.CleanupInterval)
	flag("BETSYNC_CACHE_SINGLE_FLIGHT", &c.Cache.SingleFlight)

	str("BETSYNC_CHANNEL_URL", &c.Channel.URL)
	dur("BETSYNC_RECONNECT_BASE", &c.Channel.ReconnectBase)
	num("BETSYNC_MAX_RECONNECT_ATTEMPTS", &c.Channel.MaxReconnectAttempts)

	str("BETSYNC_LEDGER_BACKEND", &c.Ledger.Backend)
	str("BETSYNC_LEDGER_PATH", &c.Ledger.Path)
	str("BETSYNC_LEDGER_KEY", &c.Ledger.StorageKey)

	flag("BETSYNC_DEBUG", &c.Debug)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that all configuration values are usable
func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	} else if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, "api.base_url must be an HTTP URL (http:// or https://)")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, "api.max_retries must not be negative")
	}
	if c.API.RetryBaseDelay <= 0 {
		errs = append(errs, "api.retry_base_delay must be positive")
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		errs = append(errs, "cache.cleanup_interval must be positive")
	}

	if c.Channel.URL != "" && !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") {
		errs = append(errs, "channel.url must be a WebSocket URL (wss:// or ws://)")
	}
	if c.Channel.ReconnectBase <= 0 {
		errs = append(errs, "channel.reconnect_base must be positive")
	}
	if c.Channel.MaxReconnectAttempts < 1 {
		errs = append(errs, "channel.max_reconnect_attempts must be at least 1")
	}

	switch c.Ledger.Backend {
	case BackendSQLite, BackendFile:
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger.path is required for the "+c.Ledger.Backend+" backend")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("ledger.backend must be sqlite, file or memory, got %q", c.Ledger.Backend))
	}
	if c.Ledger.StorageKey == "" {
		errs = append(errs, "ledger.storage_key is required")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		// Only set if not already in environment (env vars take precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
