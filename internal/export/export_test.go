package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

func TestExportFiltersLowConfidenceAndWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.OpenLearningDB(filepath.Join(dir, "learning.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now()
	require.NoError(t, db.UpsertPattern(types.Pattern{
		ID: "p-high", Intent: "keep this one", BaseConfidence: 0.7,
		LastValidated: now, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, db.UpsertPattern(types.Pattern{
		ID: "p-low", Intent: "drop this one", BaseConfidence: 0.2,
		LastValidated: now, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, db.UpsertFailure(types.Failure{
		ID: "f-1", Cause: "cause", Avoidance: "avoid", Severity: types.SeverityMinor,
		CreatedAt: now, UpdatedAt: now,
	}))

	patternsPath := filepath.Join(dir, "patterns.json")
	failuresPath := filepath.Join(dir, "failures.json")

	stats, err := Export(db, patternsPath, failuresPath)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PatternsWritten)
	require.Equal(t, 1, stats.FailuresWritten)

	raw, err := os.ReadFile(patternsPath)
	require.NoError(t, err)
	var patterns []patternRecord
	require.NoError(t, json.Unmarshal(raw, &patterns))
	require.Len(t, patterns, 1)
	require.Equal(t, "p-high", patterns[0].ID)

	require.NoFileExists(t, patternsPath+".tmp")
	require.NoFileExists(t, failuresPath+".tmp")
}

func TestExportEmptyStoreWritesEmptyArrays(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.OpenLearningDB(filepath.Join(dir, "learning.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	patternsPath := filepath.Join(dir, "patterns.json")
	failuresPath := filepath.Join(dir, "failures.json")

	stats, err := Export(db, patternsPath, failuresPath)
	require.NoError(t, err)
	require.Equal(t, 0, stats.PatternsWritten)
	require.Equal(t, 0, stats.FailuresWritten)

	raw, err := os.ReadFile(patternsPath)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(raw))
}
