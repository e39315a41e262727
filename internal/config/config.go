// Package config loads and saves codegraph's project configuration and
// detects the project root, following the struct-of-structs shape of
// codenerd's internal/config/config.go (there YAML-tagged; here TOML-tagged
// per spec.md §6).
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// IndexingConfig controls the indexer's file enumeration (spec.md §4.4, §6).
type IndexingConfig struct {
	Exclude     []string `toml:"exclude"`
	MaxFileSize int64    `toml:"max_file_size"`
}

// LearningConfig controls the confidence decay model (spec.md §4.6, §6).
type LearningConfig struct {
	DecayHalfLifeDays float64 `toml:"decay_half_life"`
}

// CrossLanguageConfig toggles cross-language edge inference (spec.md §6).
type CrossLanguageConfig struct {
	Enabled bool `toml:"enabled"`
}

// GraphConfig controls in-memory graph query limits (spec.md §4.2).
type GraphConfig struct {
	NeighborCap int `toml:"neighbor_cap"`
}

// Config holds all codegraph configuration, recognized keys per spec.md §6.
type Config struct {
	Indexing      IndexingConfig      `toml:"indexing"`
	Learning      LearningConfig      `toml:"learning"`
	CrossLanguage CrossLanguageConfig `toml:"cross_language"`
	Graph         GraphConfig         `toml:"graph"`
}

// DefaultExcludes are the directory names skipped by default during
// enumeration (spec.md §4.4).
var DefaultExcludes = []string{
	".git", ".hg", ".svn", ".codegraph",
	"node_modules", "vendor", "target", "dist", "build", "out",
	".venv", "venv", "__pycache__", ".tox",
	".idea", ".vscode",
}

// DefaultConfig returns codegraph's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Indexing: IndexingConfig{
			Exclude:     append([]string(nil), DefaultExcludes...),
			MaxFileSize: 1 << 20, // 1 MiB
		},
		Learning: LearningConfig{
			DecayHalfLifeDays: 90,
		},
		CrossLanguage: CrossLanguageConfig{
			Enabled: true,
		},
		Graph: GraphConfig{
			NeighborCap: 500,
		},
	}
}

// ConfigDirName is the hidden directory under the project root holding all
// persisted codegraph state (spec.md §6).
const ConfigDirName = ".codegraph"

// Paths collects the well-known file paths under a project's config dir.
type Paths struct {
	Root         string
	ConfigDir    string
	ConfigFile   string
	CodeDB       string
	LearningDB   string
	PatternsJSON string
	FailuresJSON string
	SkillMD      string
	GitignoreTxt string
}

// PathsFor computes the well-known paths rooted at a project directory.
func PathsFor(root string) Paths {
	dir := filepath.Join(root, ConfigDirName)
	return Paths{
		Root:         root,
		ConfigDir:    dir,
		ConfigFile:   filepath.Join(dir, "config.toml"),
		CodeDB:       filepath.Join(dir, "code.db"),
		LearningDB:   filepath.Join(dir, "learning.db"),
		PatternsJSON: filepath.Join(dir, "patterns.json"),
		FailuresJSON: filepath.Join(dir, "failures.json"),
		SkillMD:      filepath.Join(dir, "SKILL.md"),
		GitignoreTxt: filepath.Join(dir, ".gitignore"),
	}
}

// FindRoot walks upward from start looking for an existing ".codegraph"
// directory, falling back to the nearest ".git" directory, per spec.md §6's
// project-root detection rule. If neither is found before reaching the
// filesystem root, start itself (absolute) is returned as the project root
// so a first-time index_project still has somewhere to create .codegraph/.
func FindRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start dir: %w", err)
	}

	dir := abs
	var gitFallback string
	for {
		if info, err := os.Stat(filepath.Join(dir, ConfigDirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		if gitFallback == "" {
			if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
				gitFallback = dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if gitFallback != "" {
		return gitFallback, nil
	}
	return abs, nil
}

// Store loads, preserves unknown keys across, and saves a TOML config file.
// Unknown top-level tables/keys are kept in rawExtra and re-emitted verbatim
// on Save (see DESIGN.md "Config unknown-key preservation").
type Store struct {
	path     string
	rawExtra map[string]any
}

// Load reads path (creating it with defaults if absent) and returns the
// typed Config plus a Store handle for round-tripping unknown keys.
func Load(path string) (*Config, *Store, error) {
	cfg := DefaultConfig()
	st := &Store{path: path, rawExtra: map[string]any{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := st.Save(cfg); err != nil {
			return nil, nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, st, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}

	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, nil, fmt.Errorf("parse config raw: %w", err)
	}
	known := map[string]bool{"indexing": true, "learning": true, "cross_language": true, "graph": true}
	for k, v := range raw {
		if !known[k] {
			st.rawExtra[k] = v
		}
	}

	return cfg, st, nil
}

// Save atomically writes cfg back to disk, preserving any unknown keys that
// were present when this Store was loaded.
func (st *Store) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	for k, v := range st.rawExtra {
		extra := map[string]any{k: v}
		if err := enc.Encode(extra); err != nil {
			return fmt.Errorf("encode extra config key %s: %w", k, err)
		}
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}
	return nil
}
