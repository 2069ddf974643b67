// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
database:
  path: "/tmp/kg.db"
auth:
  jwt_secret: "shh"
  token_ttl: "12h"
chat:
  mode: "oneshot"
  response_timeout: "45s"
  session_ttl: "1h"
agent:
  provider: "openai"
  model: "gpt-4o"
  api_key: "sk-test"
analysis:
  enabled: true
  run_timeout: "90s"
ingest:
  data_dir: "/data/docs"
logging:
  level: "debug"
  format: "json"
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, ModeOneShot, cfg.Chat.Mode)
	assert.Equal(t, 45*time.Second, cfg.Chat.ResponseTimeout)
	assert.Equal(t, time.Hour, cfg.Chat.SessionTTL)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 90*time.Second, cfg.Analysis.RunTimeout)
	assert.Equal(t, "/data/docs", cfg.Ingest.DataDir)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("KG_TEST_SECRET", "from-env")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "/tmp/kg.db"
auth:
  jwt_secret: "${KG_TEST_SECRET}"
agent:
  provider: "scripted"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "/tmp/kg.db"
agent:
  provider: "scripted"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeStreaming, cfg.Chat.Mode)
	assert.Equal(t, 30*time.Second, cfg.Chat.ResponseTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Chat.SessionTTL)
	assert.Equal(t, 64, cfg.Analysis.QueueSize)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing http addr", "database:\n  path: /tmp/kg.db\nagent:\n  provider: scripted\n"},
		{"missing db path", "server:\n  http_addr: ':8080'\nagent:\n  provider: scripted\n"},
		{"bad chat mode", "server:\n  http_addr: ':8080'\ndatabase:\n  path: /tmp/kg.db\nagent:\n  provider: scripted\nchat:\n  mode: telepathy\n"},
		{"openai without key", "server:\n  http_addr: ':8080'\ndatabase:\n  path: /tmp/kg.db\nagent:\n  provider: openai\n"},
		{"unknown provider", "server:\n  http_addr: ':8080'\ndatabase:\n  path: /tmp/kg.db\nagent:\n  provider: magic\n"},
		{"bad duration", "server:\n  http_addr: ':8080'\ndatabase:\n  path: /tmp/kg.db\nagent:\n  provider: scripted\nchat:\n  response_timeout: soon\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderScripted, cfg.Agent.Provider)
}
