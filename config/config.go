package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // json or console (default: json)
}

// NeynarConfig configures the social graph and storage usage API client.
type NeynarConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`           // HTTP client timeout (default: 10s)
	RateLimit        float64       `yaml:"rate_limit"`        // Requests per second (default: 20)
	Burst            int           `yaml:"burst"`             // Limiter burst (default: 15)
	FollowingLimit   int           `yaml:"following_limit"`   // Accounts fetched per following page (default: 100)
	FailureThreshold int           `yaml:"failure_threshold"` // Consecutive failures before suspending an endpoint (default: 5)
	SuspendFor       time.Duration `yaml:"suspend_for"`       // How long a failing endpoint stays suspended (default: 30s)
}

// FetchConfig configures the batched usage fetcher.
type FetchConfig struct {
	Mode        string        `yaml:"mode"`        // pool or batched (default: pool)
	BatchSize   int           `yaml:"batch_size"`  // Group size in batched mode (default: 15)
	Concurrency int           `yaml:"concurrency"` // Worker count in pool mode (default: 15)
	Timeout     time.Duration `yaml:"timeout"`     // Deadline for one usage lookup (default: 5s)
}

// RedisConfig configures the shared cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"` // Key prefix (default: fcgift:usage:)
}

// CacheConfig selects and sizes the usage cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory or redis (default: memory)
	Size    int           `yaml:"size"`    // Max entries for memory backend, 0 = unbounded (default: 10000)
	TTL     time.Duration `yaml:"ttl"`     // Entry lifetime, 0 = no expiry (default: 10m)
	Redis   RedisConfig   `yaml:"redis"`
}

// PagingConfig configures candidate pagination.
type PagingConfig struct {
	PageSize     int           `yaml:"page_size"`     // Default page size (default: 1)
	MaxPages     int           `yaml:"max_pages"`     // Cap on total pages (default: 5)
	MaxPageSize  int           `yaml:"max_page_size"` // Largest page size a client may ask for (default: 25)
	CursorSecret string        `yaml:"cursor_secret"` // HMAC key for page cursors
	CursorTTL    time.Duration `yaml:"cursor_ttl"`    // Cursor lifetime (default: 30m)
}

// Config represents the application configuration
type Config struct {
	Port     string       `yaml:"port"`
	Database string       `yaml:"database"`
	Log      LogConfig    `yaml:"log"`
	Neynar   NeynarConfig `yaml:"neynar"`
	Fetch    FetchConfig  `yaml:"fetch"`
	Cache    CacheConfig  `yaml:"cache"`
	Paging   PagingConfig `yaml:"paging"`
}

// Default returns a configuration populated with defaults.
func Default() Config {
	return Config{
		Port:     ":8080",
		Database: "fcgift.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Neynar: NeynarConfig{
			BaseURL:          "https://api.neynar.com/v2/farcaster",
			Timeout:          10 * time.Second,
			RateLimit:        20,
			Burst:            15,
			FollowingLimit:   100,
			FailureThreshold: 5,
			SuspendFor:       30 * time.Second,
		},
		Fetch: FetchConfig{
			Mode:        "pool",
			BatchSize:   15,
			Concurrency: 15,
			Timeout:     5 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "memory",
			Size:    10000,
			TTL:     10 * time.Minute,
			Redis: RedisConfig{
				Prefix: "fcgift:usage:",
			},
		},
		Paging: PagingConfig{
			PageSize:    1,
			MaxPages:    5,
			MaxPageSize: 25,
			CursorTTL:   30 * time.Minute,
		},
	}
}

// Load reads and parses the configuration file. A missing file is not an error;
// defaults and environment overrides still apply. Values from a .env file in the
// working directory are loaded into the environment first.
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env: %w", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("could not parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		logger.Warnw("Config file not found, using defaults", "path", path)
	default:
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Infow("Loaded configuration",
		"path", path,
		"port", cfg.Port,
		"database", cfg.Database,
		"neynar_base_url", cfg.Neynar.BaseURL,
		"following_limit", cfg.Neynar.FollowingLimit,
		"fetch_mode", cfg.Fetch.Mode,
		"fetch_concurrency", cfg.Fetch.Concurrency,
		"cache_backend", cfg.Cache.Backend,
		"cache_size", cfg.Cache.Size,
		"cache_ttl", cfg.Cache.TTL,
		"page_size", cfg.Paging.PageSize,
		"max_pages", cfg.Paging.MaxPages,
	)

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NEYNAR_API_KEY"); v != "" {
		c.Neynar.APIKey = v
	}
	if v := os.Getenv("BASE_URL_NEYNAR_V2"); v != "" {
		c.Neynar.BaseURL = v
	}
	if v := os.Getenv("CURSOR_SECRET"); v != "" {
		c.Paging.CursorSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if !strings.HasPrefix(v, ":") && !strings.Contains(v, ":") {
			v = ":" + v
		}
		c.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Neynar.BaseURL == "" {
		problems = append(problems, "neynar.base_url is required")
	}
	if c.Neynar.RateLimit <= 0 || c.Neynar.Burst <= 0 {
		problems = append(problems, "neynar.rate_limit and neynar.burst must be positive")
	}
	if c.Neynar.FollowingLimit <= 0 || c.Neynar.FollowingLimit > 100 {
		problems = append(problems, "neynar.following_limit must be between 1 and 100")
	}
	switch c.Fetch.Mode {
	case "pool", "batched":
	default:
		problems = append(problems, fmt.Sprintf("fetch.mode %q is not one of pool, batched", c.Fetch.Mode))
	}
	if c.Fetch.BatchSize <= 0 || c.Fetch.Concurrency <= 0 {
		problems = append(problems, "fetch.batch_size and fetch.concurrency must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		problems = append(problems, "fetch.timeout must be positive")
	}
	switch c.Cache.Backend {
	case "memory":
		if c.Cache.Size < 0 {
			problems = append(problems, "cache.size must not be negative")
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			problems = append(problems, "cache.redis.addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q is not one of memory, redis", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl must not be negative")
	}
	if c.Paging.PageSize <= 0 || c.Paging.MaxPages <= 0 || c.Paging.MaxPageSize < c.Paging.PageSize {
		problems = append(problems, "paging sizes must be positive and max_page_size >= page_size")
	}
	if c.Paging.CursorSecret == "" {
		problems = append(problems, "paging.cursor_secret (or CURSOR_SECRET) is required")
	}
	if c.Paging.CursorTTL <= 0 {
		problems = append(problems, "paging.cursor_ttl must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
