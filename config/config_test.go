package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullYAML = `
server:
  port: 9090
  rate_limit_per_sec: 20
  rate_limit_burst: 10
  cache_ttl_seconds: 60
  public_url: https://prod.example.com
database:
  driver: sqlite
  dsn: file:prod.db
extraction:
  model: gemini-test
  timeout_seconds: 15
workflow:
  handoff_ttl_seconds: 120
worker_pool:
  size: 3
reference:
  machines:
    - id: IMB
      name: Imballo
    - id: CAS
      name: Cassonatura
  phases:
    - id: MST
      name: Multistrato
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 10, cfg.Server.RateLimitBurst)
	assert.Equal(t, time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "https://prod.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "gemini-test", cfg.Extraction.Model)
	assert.Equal(t, 15*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.HandoffTTL)
	assert.Equal(t, 3, cfg.WorkerPool.Size)

	require.Len(t, cfg.Reference.Machines, 2)
	assert.Equal(t, ReferenceEntry{ID: "IMB", Name: "Imballo"}, cfg.Reference.Machines[0])
	require.Len(t, cfg.Reference.Phases, 1)
	assert.Equal(t, "MST", cfg.Reference.Phases[0].ID)
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("VAPID_PUBLIC_KEY", "")
	t.Setenv("VAPID_PRIVATE_KEY", "")

	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "https://api.qrserver.com/v1/create-qr-code/", cfg.Server.QREndpoint)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "gemini-2.5-flash", cfg.Extraction.Model)
	assert.Equal(t, time.Minute, cfg.Extraction.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Workflow.HandoffTTL)
	assert.Equal(t, 30*time.Minute, cfg.Workflow.StagingTTL)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 64, cfg.WorkerPool.Queue)
	assert.False(t, cfg.Push.Enabled())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")

	cfg, err := Parse([]byte("database:\n  dsn: postgres://file\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "legacy-key", cfg.Extraction.APIKey)
	assert.True(t, cfg.Push.Enabled())
}

func TestParse_GeminiKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("API_KEY", "legacy-key")

	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Extraction.APIKey)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
