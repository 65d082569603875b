package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunardb/lunar-db/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.Equal(t, "parquet", cfg.Data.Format)
	assert.Equal(t, 1000, cfg.Exec.MaxRecursion)
	assert.True(t, cfg.Exec.HashJoin)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data:
  dir: /tmp/lunardb
  format: json
exec:
  max_recursion: 50
  hash_join: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/lunardb", cfg.Data.Dir)
	assert.Equal(t, "json", cfg.Data.Format)
	assert.Equal(t, 50, cfg.Exec.MaxRecursion)
	assert.False(t, cfg.Exec.HashJoin)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad_format.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  format: csv\n"), 0644))
	_, err := config.Load(path)
	assert.Error(t, err)

	path = filepath.Join(dir, "bad_recursion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exec:\n  max_recursion: 0\n"), 0644))
	_, err = config.Load(path)
	assert.Error(t, err)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, config.EnsureDataDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
