package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 8081, cfg.InternalPort)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.CASMaxAttempts)
	assert.Equal(t, 10, cfg.Negotiation.MaxCandidates)
	assert.Equal(t, Weights{Task: 0.5, Negotiation: 0.2, Budget: 0.2, Skill: 0.1}, cfg.Negotiation.Weights)
	assert.Equal(t, SearchBackendStore, cfg.SearchBackend)
	assert.True(t, cfg.SweepEnabled())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentdir.yaml")
	content := `
http_port: 9000
session_ttl: 90s
search_backend: bleve
sweep_schedule: "off"
negotiation:
  max_candidates: 3
  weights:
    task: 0.4
    skill: 0.3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("CAS_BASE_DELAY_MS", "25")
	t.Setenv("NEGOTIATION_WEIGHT_BUDGET", "0.15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort, "env wins over file")
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
	assert.Equal(t, SearchBackendBleve, cfg.SearchBackend)
	assert.False(t, cfg.SweepEnabled())
	assert.Equal(t, 3, cfg.Negotiation.MaxCandidates)
	assert.Equal(t, 0.4, cfg.Negotiation.Weights.Task)
	assert.Equal(t, 0.2, cfg.Negotiation.Weights.Negotiation, "unset weights keep defaults")
	assert.Equal(t, 0.15, cfg.Negotiation.Weights.Budget)
	assert.Equal(t, 0.3, cfg.Negotiation.Weights.Skill)
	assert.Equal(t, 25*time.Millisecond, cfg.CASBaseDelay)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("SEARCH_BACKEND", "elastic")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative weight", func(t *testing.T) {
		t.Setenv("NEGOTIATION_WEIGHT_SKILL", "-1")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})
}
