package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".codegraph", "config.toml")
	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Graph.NeighborCap, cfg.Graph.NeighborCap)
	require.FileExists(t, path)
}

func TestLoadPreservesUnknownKeysOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[indexing]
max_file_size = 2048

[experimental]
enable_thing = true
`), 0o644))

	cfg, st, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(2048), cfg.Indexing.MaxFileSize)

	cfg.Graph.NeighborCap = 999
	require.NoError(t, st.Save(cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "enable_thing")
	require.Contains(t, string(raw), "999")
}

func TestFindRootPrefersCodegraphOverGit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(sub, ConfigDirName), 0o755))

	found, err := FindRoot(sub)
	require.NoError(t, err)
	require.Equal(t, sub, found)
}

func TestFindRootFallsBackToGit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, err := FindRoot(sub)
	require.NoError(t, err)
	require.Equal(t, root, found)
}

func TestFindRootFallsBackToStartWhenNeitherExists(t *testing.T) {
	sub := t.TempDir()
	found, err := FindRoot(sub)
	require.NoError(t, err)
	require.Equal(t, sub, found)
}
