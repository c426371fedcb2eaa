package pixmeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
in_dir: /corpus
workers: 3
model_aliases:
  raw_name.safetensors: Friendly Name
extra_markers:
  - sketchy
`), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/corpus", c.InDir)
	assert.Equal(t, 3, c.WorkerCount())
	assert.Equal(t, "Friendly Name", c.ModelAliases["raw_name.safetensors"])
	assert.Equal(t, []string{"sketchy"}, c.ExtraMarkers)

	// Unset keys keep their defaults.
	assert.Equal(t, "pixmeta_statistics.json", c.StatsFile)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOrCreateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	c, err := LoadOrCreateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "consolidation_rules.json", c.RulesFile)

	// The file now exists and loads back with the same settings.
	c2, err := LoadOrCreateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c.StatsFile, c2.StatsFile)
	assert.Equal(t, c.RulesFile, c2.RulesFile)
	assert.Equal(t, c.BlacklistFile, c2.BlacklistFile)
}

func TestWorkerCountDefault(t *testing.T) {
	c := DefaultConfig()
	assert.Greater(t, c.WorkerCount(), 0)
}
