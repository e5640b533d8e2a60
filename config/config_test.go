package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend:\n  base_url: https://video.example\n"))
	require.NoError(t, err)

	g := cfg.Generation
	assert.Equal(t, 14.0, g.ChunkCap())
	assert.Equal(t, DurationTiers{Short: 10, Long: 15}, g.DurationTiers)
	assert.Equal(t, 10.0, g.ShotDurationCeiling)
	assert.Equal(t, 5*time.Second, g.PollInterval())
	assert.Equal(t, 120, g.PollAttempts)
	assert.Equal(t, 2*time.Second, g.RetryStep())
	assert.Equal(t, 72*time.Hour, cfg.MinIO.PresignExpiry())
	assert.Equal(t, time.Minute, cfg.Backend.Timeout())
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.Concurrency)
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "scene-video", cfg.MinIO.Bucket)
	assert.Equal(t, []string{"cinematic", "consistent character design"}, cfg.Generation.StyleTags)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"no room":     "backend:\n  base_url: x\ngeneration:\n  max_task_duration: 5\n  safety_buffer: 5\n",
		"tiers":       "backend:\n  base_url: x\ngeneration:\n  duration_tiers:\n    short: 20\n    long: 15\n",
		"no backend":  "generation:\n  max_task_duration: 15\n",
		"broken yaml": "backend: [\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
