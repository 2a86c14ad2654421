package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_PartialFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volgate.yaml")
	partial := []byte(`
classifier:
  tier_full: 0.95
bins:
  overflow_enabled: true
server:
  port: 9999
`)
	require.NoError(t, os.WriteFile(path, partial, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.95, cfg.Classifier.TierFull, 1e-9)
	assert.True(t, cfg.Bins.OverflowEnabled)
	assert.Equal(t, 9999, cfg.Server.Port)

	// Untouched sections keep their defaults.
	def := Default()
	assert.Equal(t, def.Flags, cfg.Flags)
	assert.Equal(t, def.Risk, cfg.Risk)
	assert.InDelta(t, def.Classifier.TierMin, cfg.Classifier.TierMin, 1e-9)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volgate.yaml")
	bad := []byte("bins:\n  max_pct: 1.5\n")
	require.NoError(t, os.WriteFile(path, bad, 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volgate.yaml")

	cfg := Default()
	cfg.Server.Port = 8123
	cfg.Classifier.VolAbortCeiling = 35
	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
