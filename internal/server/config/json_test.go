package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_grpc": "www.example:9000",
		"endpoint_addr_http": "www.example:8000",
		"storage_backend":    "bolt",
		"database_dsn":       "vault.db",
		"secret_key":         "my_secret_key",
		"allow_undelete":     true,
		"rate_limit_rps":     2.5,
		"rate_limit_burst":   5,
		"limiter_idle_ttl":   "30m",
		"cors_origins":       []string{"https://app.example"},
		"log_format":         "zap",
		"s3_root_user":       "user",
		"s3_root_password":   "password",
		"s3_bucket":          "bucket",
		"s3_region":          "region",
		"s3_base_endpoint":   "base_endpoint",
		"presign_ttl":        int64(5 * time.Minute),
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "www.example:8000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "bolt", cfg.StorageBackend)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.True(t, cfg.AllowUndelete)
		assert.Equal(t, 2.5, cfg.RateLimitRPS)
		assert.Equal(t, 5, cfg.RateLimitBurst)
		assert.Equal(t, 30*time.Minute, cfg.LimiterIdleTTL)
		assert.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
		assert.Equal(t, "zap", cfg.LogFormat)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, 5*time.Minute, cfg.PresignTTL)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		path := writeTempJSON(t, dir, "partial.json", map[string]any{"secret_key": "other"})
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "other", cfg.SecretKey)
		assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
		assert.Equal(t, 15*time.Minute, cfg.PresignTTL)
		assert.False(t, cfg.AllowUndelete)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		cfg.LoadDefaults()
		want := *cfg
		parseJson(cfg)

		assert.Equal(t, want, *cfg)
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "missing.json")}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("bad json panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
		os.Args = []string{"testbin", "-c", bad}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
