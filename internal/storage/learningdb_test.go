package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/types"
)

func openLearningDB(t *testing.T) *LearningDB {
	t.Helper()
	db, err := OpenLearningDB(filepath.Join(t.TempDir(), "learning.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSolutionLifecycleInsertFinalizeLineage(t *testing.T) {
	db := openLearningDB(t)
	now := time.Now()

	parent := types.Solution{ID: "s1", Task: "refactor cache", Outcome: types.OutcomeInProgress, CreatedAt: now}
	require.NoError(t, db.InsertSolution(parent))

	child := types.Solution{ID: "s2", Task: "refactor cache pt 2", ParentID: "s1", Outcome: types.OutcomeInProgress, CreatedAt: now}
	require.NoError(t, db.InsertSolution(child))

	require.NoError(t, db.FinalizeSolution("s1", types.OutcomeSuccess, map[string]float64{"duration_s": 1.5}, []string{"cache.py"}, []string{"pkg::Cache"}, now))

	got, err := db.SolutionByID("s1")
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSuccess, got.Outcome)
	require.Equal(t, []string{"cache.py"}, got.FilesModified)

	children, err := db.SolutionsByParent("s1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "s2", children[0].ID)

	matches, err := db.SolutionsByTaskSubstring("refactor cache")
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestFinalizeSolutionRejectsDoubleFinalize(t *testing.T) {
	db := openLearningDB(t)
	now := time.Now()
	require.NoError(t, db.InsertSolution(types.Solution{ID: "s1", Task: "t", Outcome: types.OutcomeInProgress, CreatedAt: now}))
	require.NoError(t, db.FinalizeSolution("s1", types.OutcomeSuccess, nil, nil, nil, now))

	err := db.FinalizeSolution("s1", types.OutcomeFailure, nil, nil, nil, now)
	require.Error(t, err)
}

func TestInstructionsAppendInCreationOrder(t *testing.T) {
	db := openLearningDB(t)
	base := time.Now()
	require.NoError(t, db.AddInstruction("always run tests first", base))
	require.NoError(t, db.AddInstruction("prefer small diffs", base.Add(time.Second)))

	got, err := db.ListInstructions()
	require.NoError(t, err)
	require.Equal(t, []string{"always run tests first", "prefer small diffs"}, got)
}

func TestUpsertNicheBestOverwritesOnTaskTypeConflict(t *testing.T) {
	// UpsertNicheBest itself is an unconditional upsert, keyed by task_type;
	// score-gating which candidate wins is learning.Store.ConsiderForNiche's
	// job, one layer up, not this store method's.
	db := openLearningDB(t)
	require.NoError(t, db.UpsertNicheBest(types.Niche{
		TaskType: "bugfix", Description: "small fixes",
		Best: &types.NicheBestSolution{SolutionID: "s1", CompositeScore: 0.5},
	}))
	require.NoError(t, db.UpsertNicheBest(types.Niche{
		TaskType: "bugfix", Description: "small fixes, revised",
		Best: &types.NicheBestSolution{SolutionID: "s2", CompositeScore: 0.2},
	}))

	niches, err := db.ListNiches()
	require.NoError(t, err)
	require.Len(t, niches, 1)
	require.Equal(t, "s2", niches[0].Best.SolutionID)
	require.Equal(t, "small fixes, revised", niches[0].Description)
}
