// Package config holds tracker configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Fetch modes for product pages.
const (
	FetchModeBrowser = "browser"
	FetchModeStatic  = "static"
)

// Config holds daemon configuration.
type Config struct {
	ListenAddr   string
	DatabasePath string

	FetchMode       string // browser or static
	UserAgent       string
	NavTimeout      time.Duration
	SettleDelay     time.Duration
	BrowserPoolSize int

	PageCacheSize int
	PageCacheTTL  time.Duration

	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	MaxConcurrentChecks  int
	ManualCheckCooldown  time.Duration
	HistoryRetentionDays int

	OwnerWebhookURL string
	OwnerTimeout    time.Duration

	AllowedOrigins []string
	Verbose        bool
}

// DefaultConfig returns conservative defaults for a single-host deployment.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:           ":8080",
		DatabasePath:         "data/tracker.db",
		FetchMode:            FetchModeBrowser,
		UserAgent:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		NavTimeout:           30 * time.Second,
		SettleDelay:          2 * time.Second,
		BrowserPoolSize:      2,
		PageCacheSize:        64,
		PageCacheTTL:         30 * time.Second,
		// A failed check waits for its next scheduled fire; transport
		// retries are opt-in.
		MaxRetries:           0,
		RetryBackoff:         500 * time.Millisecond,
		RetryBackoffMax:      5 * time.Second,
		MaxConcurrentChecks:  4,
		ManualCheckCooldown:  15 * time.Minute,
		HistoryRetentionDays: 180,
		OwnerWebhookURL:      "",
		OwnerTimeout:         10 * time.Second,
		AllowedOrigins:       []string{"*"},
		Verbose:              false,
	}
}

// Load builds configuration from defaults overlaid with environment
// variables. A .env file is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v, ok := EnvString("TRACKER_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := EnvString("TRACKER_DB"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := EnvString("TRACKER_FETCH_MODE"); ok {
		cfg.FetchMode = v
	}
	if v, ok := EnvString("TRACKER_USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := EnvString("TRACKER_OWNER_WEBHOOK"); ok {
		cfg.OwnerWebhookURL = v
	}
	if v, ok, err := EnvInt("TRACKER_BROWSER_POOL"); err != nil {
		return nil, err
	} else if ok {
		cfg.BrowserPoolSize = v
	}
	if v, ok, err := EnvInt("TRACKER_MAX_RETRIES"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRetries = v
	}
	if v, ok, err := EnvInt("TRACKER_MAX_CONCURRENT_CHECKS"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxConcurrentChecks = v
	}
	if v, ok, err := EnvInt("TRACKER_HISTORY_RETENTION_DAYS"); err != nil {
		return nil, err
	} else if ok {
		cfg.HistoryRetentionDays = v
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.FetchMode != FetchModeBrowser && c.FetchMode != FetchModeStatic {
		return fmt.Errorf("fetch mode must be %s or %s", FetchModeBrowser, FetchModeStatic)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.BrowserPoolSize <= 0 {
		return fmt.Errorf("browser pool size must be positive")
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.PageCacheTTL < 0 {
		return fmt.Errorf("page cache TTL cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 || c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.MaxConcurrentChecks <= 0 {
		return fmt.Errorf("max concurrent checks must be positive")
	}
	if c.ManualCheckCooldown <= 0 {
		return fmt.Errorf("manual check cooldown must be positive")
	}
	if c.HistoryRetentionDays <= 0 {
		return fmt.Errorf("history retention days must be positive")
	}
	return nil
}

// EnvString reads a string environment variable, reporting presence.
func EnvString(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// EnvInt reads an integer environment variable, reporting presence.
func EnvInt(name string) (int, bool, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return parsed, true, nil
}
