package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_TypesenseConfig(t *testing.T) {
	t.Setenv("TYPESENSE_URL", "http://test-typesense:8108")
	t.Setenv("TYPESENSE_API_KEY", "test-key")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "http://test-typesense:8108", cfg.Typesense.URL)
	assert.Equal(t, "test-key", cfg.Typesense.APIKey)
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("TYPESENSE_URL")
	os.Unsetenv("TYPESENSE_API_KEY")
	os.Unsetenv("ENGINE_CONFIG_FILE")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8108", cfg.Typesense.URL)
	assert.Equal(t, "xyz", cfg.Typesense.APIKey)
	assert.Equal(t, 1000, cfg.Engine.WarmupBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Engine.CodeLookupTTL)
	assert.Equal(t, 5*time.Minute, cfg.Engine.SearchResultTTL)
	assert.Equal(t, 2, cfg.Engine.CacheRetries)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
}

func TestLoad_EngineFileOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("warmup_batch_size: 250\nsearch_result_ttl: 2m\n"), 0o600))

	t.Setenv("ENGINE_CONFIG_FILE", path)
	t.Setenv("ENGINE_DIAGNOSIS_LIMIT", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Engine.WarmupBatchSize)
	assert.Equal(t, 2*time.Minute, cfg.Engine.SearchResultTTL)
	assert.Equal(t, 7, cfg.Engine.DiagnosisLimit)
}

func TestLoad_MissingEngineFile(t *testing.T) {
	t.Setenv("ENGINE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "codes", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=codes sslmode=disable", cfg.DatabaseDSN())
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://orders.example.org, ,https://admin.example.org")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://orders.example.org", "https://admin.example.org"}, cfg.Server.AllowedOrigins)
}
