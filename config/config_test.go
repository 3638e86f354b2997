package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcgift/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CURSOR_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), logging.NewNop())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "pool", cfg.Fetch.Mode)
	assert.Equal(t, 15, cfg.Fetch.BatchSize)
	assert.Equal(t, 100, cfg.Neynar.FollowingLimit)
	assert.Equal(t, 1, cfg.Paging.PageSize)
	assert.Equal(t, 5, cfg.Paging.MaxPages)
	assert.Equal(t, "s3cret", cfg.Paging.CursorSecret)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: ":9000"
database: "/tmp/gift.db"
neynar:
  base_url: "http://localhost:1234"
  api_key: "from-file"
  timeout: 3s
fetch:
  mode: batched
  batch_size: 10
  timeout: 2s
cache:
  backend: memory
  size: 0
  ttl: 0s
paging:
  page_size: 2
  max_pages: 3
  cursor_secret: "file-secret"
`)
	t.Setenv("NEYNAR_API_KEY", "from-env")
	t.Setenv("PORT", "7000")

	cfg, err := Load(path, logging.NewNop())
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, "/tmp/gift.db", cfg.Database)
	assert.Equal(t, "http://localhost:1234", cfg.Neynar.BaseURL)
	assert.Equal(t, "from-env", cfg.Neynar.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Neynar.Timeout)
	assert.Equal(t, "batched", cfg.Fetch.Mode)
	assert.Equal(t, 10, cfg.Fetch.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 0, cfg.Cache.Size)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.Equal(t, 2, cfg.Paging.PageSize)
	assert.Equal(t, 3, cfg.Paging.MaxPages)
	assert.Equal(t, "file-secret", cfg.Paging.CursorSecret)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "port: [unterminated")
	_, err := Load(path, logging.NewNop())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Paging.CursorSecret = "x"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Paging.CursorSecret = "" }},
		{"unknown fetch mode", func(c *Config) { c.Fetch.Mode = "stream" }},
		{"zero batch size", func(c *Config) { c.Fetch.BatchSize = 0 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }},
		{"following limit above api max", func(c *Config) { c.Neynar.FollowingLimit = 150 }},
		{"page size above max", func(c *Config) { c.Paging.PageSize = 50 }},
		{"zero max pages", func(c *Config) { c.Paging.MaxPages = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
