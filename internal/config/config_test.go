package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/config"
	"github.com/farcloser/tropism/internal/gain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, gain.PolicyClamp, cfg.GainPolicy())
	assert.Equal(t, atomicfile.Rename, cfg.Mode())
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.InDelta(t, 1.0, cfg.ClipCeiling, 1e-12)
	assert.InDelta(t, 89.0, cfg.TargetDB, 1e-12)
	assert.Positive(t, cfg.Workers)
	assert.False(t, cfg.PreventClipping)
	assert.False(t, cfg.TruePeak)
}

func TestDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	require.NoError(t, os.MkdirAll(filepath.Join(home, "tropism"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "tropism", "config.yaml"), []byte("policy: wrap\n"), 0o600))

	assert.Equal(t, filepath.Join(home, "tropism", "config.yaml"), config.DefaultPath())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, gain.PolicyWrap, cfg.GainPolicy())
}

func TestLayering(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
policy: strict
prevent_clipping: true
clip_ceiling: 0.9
true_peak: true
write_mode: in-place
workers: 3
log_level: debug
`)

	cfg, err := config.Load(path, map[string]any{config.KeyWorkers: 1, config.KeyPolicy: "wrap"})
	require.NoError(t, err)

	assert.Equal(t, gain.PolicyWrap, cfg.GainPolicy())
	assert.True(t, cfg.PreventClipping)
	assert.InDelta(t, 0.9, cfg.ClipCeiling, 1e-12)
	assert.True(t, cfg.TruePeak)
	assert.Equal(t, atomicfile.InPlace, cfg.Mode())
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	// Untouched keys keep their defaults.
	assert.InDelta(t, 89.0, cfg.TargetDB, 1e-12)
}

func TestInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"policy":    "policy: sometimes\n",
		"mode":      "write_mode: copy\n",
		"ceiling":   "clip_ceiling: 1.5\n",
		"workers":   "workers: 0\n",
		"log level": "log_level: chatty\n",
		"yaml":      "policy: [\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(writeConfig(t, content), nil)
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestExplicitMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
