package config

import (
	"os"
	"path/filepath"
)

// DetectRoot walks upward from start looking for a directory containing
// .codegraph/ (highest priority) else .git/ (spec.md §6 "Project-root
// detection"). Detection is deferred by the caller until after the
// initialize handshake so a client-supplied root can be honored first.
func DetectRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
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
