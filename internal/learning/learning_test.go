package learning

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/config"
	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenLearningDB(filepath.Join(t.TempDir(), "learning.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.DefaultConfig()
	return New(db, func() *config.Config { return cfg })
}

func TestExtractPatternAndRecallByScope(t *testing.T) {
	s := newTestStore(t)

	id, err := s.ExtractPattern("retry flaky network calls", "exponential backoff", nil,
		types.Scope{Globs: []string{"**/*.go"}}, 0.9)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	matches, err := s.RecallPatterns(types.Scope{Globs: []string{"internal/net/client.go"}}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, id, matches[0].Pattern.ID)

	none, err := s.RecallPatterns(types.Scope{Globs: []string{"**/*.py"}}, 10)
	require.NoError(t, err)
	require.Empty(t, none)

	bare, err := s.RecallPatterns(types.Scope{}, 10)
	require.NoError(t, err)
	require.Empty(t, bare)
}

func TestRecallFailuresUnionsCriticalUnconditionally(t *testing.T) {
	s := newTestStore(t)

	_, err := s.RecordFailure("deadlock on shared mutex", "always lock in id order", types.SeverityCritical,
		types.Scope{Tags: []string{"concurrency"}})
	require.NoError(t, err)
	_, err = s.RecordFailure("off-by-one in pagination", "use half-open ranges", types.SeverityMinor,
		types.Scope{Tags: []string{"pagination"}})
	require.NoError(t, err)

	out, err := s.RecallFailures(types.Scope{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, types.SeverityCritical, out[0].Severity)

	out, err = s.RecallFailures(types.Scope{Tags: []string{"pagination"}}, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestConfidenceDecayMomentumAndDrift(t *testing.T) {
	now := time.Now()

	fresh, drifting := effectiveConfidence(0.8, 0, 0, now, now, 90)
	require.InDelta(t, 0.8, fresh, 1e-9)
	require.False(t, drifting)

	oldHalfLife, _ := effectiveConfidence(0.8, 0, 0, now.Add(-90*24*time.Hour), now, 90)
	require.InDelta(t, 0.4, oldHalfLife, 0.01)

	boosted, _ := effectiveConfidence(0.5, 10, 10, now, now, 90)
	require.InDelta(t, 0.6, boosted, 1e-9) // 0.5 * 1.2 cap

	drifted, isDrifting := effectiveConfidence(0.5, 10, 2, now, now, 90)
	require.True(t, isDrifting)
	require.Less(t, drifted, 0.5)
}

func TestConfidenceIsCappedAtOne(t *testing.T) {
	now := time.Now()

	// base=0.9, no decay, full-momentum boost would be 0.9*1.2=1.08 uncapped.
	capped, drifting := effectiveConfidence(0.9, 10, 10, now, now, 90)
	require.False(t, drifting)
	require.InDelta(t, 1.0, capped, 1e-9)
	require.LessOrEqual(t, capped, 1.0)
}

func TestRecordAttemptOutcomeAndLineage(t *testing.T) {
	s := newTestStore(t)

	root, err := s.RecordAttempt("migrate auth middleware to new token store (first attempt)", "plan A", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(root, types.OutcomeFailure, nil, nil, nil))

	retry, err := s.RecordAttempt("retry the auth token migration with a smaller blast radius", "plan B", root)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(retry, types.OutcomeSuccess, map[string]float64{"duration_s": 12}, []string{"auth.go"}, nil))

	// a finalized solution cannot be finalized twice.
	require.Error(t, s.RecordOutcome(root, types.OutcomeSuccess, nil, nil, nil))

	lineage, err := s.QueryLineage("first attempt")
	require.NoError(t, err)
	require.Len(t, lineage, 2)

	depths := map[string]int{}
	for _, entry := range lineage {
		depths[entry.Solution.ID] = entry.Depth
	}
	require.Equal(t, 0, depths[root])
	require.Equal(t, 1, depths[retry])
}

func TestReflectSuccessAndLowQualityLesson(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RecordAttempt("add input validation", "plan", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(id, types.OutcomeSuccess, nil, []string{"validate.go"}, nil))

	result, err := s.Reflect(id, "validate inputs at the boundary", "",
		"missing bounds check", "When parsing user input, do validate length because it prevented a crash",
		0.8, types.Scope{Tags: []string{"validation"}})
	require.NoError(t, err)
	require.NotEmpty(t, result.PatternID)
	require.Empty(t, result.FailureID)
	require.False(t, result.LowQuality)

	patterns, err := s.RecallPatterns(types.Scope{Tags: []string{"validation"}}, 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, []string{"validate.go"}, patterns[0].Pattern.Examples)

	badID, err := s.RecordAttempt("another task", "plan", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(badID, types.OutcomeFailure, nil, nil, nil))

	badResult, err := s.Reflect(badID, "intent", "", "cause", "not schema shaped", 0.5, types.Scope{Tags: []string{"x"}})
	require.NoError(t, err)
	require.True(t, badResult.LowQuality)
	require.NotEmpty(t, badResult.FailureID)
}

func TestReflectPartialScalesConfidenceAndEmitsBoth(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RecordAttempt("partially fix flaky test", "plan", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(id, types.OutcomePartial, nil, []string{"flaky_test.go"}, nil))

	result, err := s.Reflect(id, "retry flaky assertions", "", "timing assumption",
		"When a test asserts on timing, do add a retry because CI jitter causes false failures",
		1.0, types.Scope{Tags: []string{"testing"}})
	require.NoError(t, err)
	require.NotEmpty(t, result.PatternID)
	require.NotEmpty(t, result.FailureID)

	patterns, err := s.RecallPatterns(types.Scope{Tags: []string{"testing"}}, 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.InDelta(t, 0.6, patterns[0].Pattern.BaseConfidence, 1e-9)
}

func TestSuggestApproachSynthesizesDeterministicText(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ExtractPattern("cache expensive lookups", "memoize with sync.Map", nil,
		types.Scope{Tags: []string{"perf"}}, 0.85)
	require.NoError(t, err)
	_, err = s.RecordFailure("unbounded cache growth", "evict with an LRU", types.SeverityMajor,
		types.Scope{Tags: []string{"perf"}})
	require.NoError(t, err)

	id, err := s.RecordAttempt("cache expensive database lookups", "plan", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(id, types.OutcomeSuccess, nil, nil, nil))

	suggestion, err := s.SuggestApproach("cache expensive database lookups", types.Scope{Tags: []string{"perf"}})
	require.NoError(t, err)
	require.Len(t, suggestion.Patterns, 1)
	require.Len(t, suggestion.Failures, 1)
	require.NotNil(t, suggestion.PriorSolution)
	require.Equal(t, id, suggestion.PriorSolution.ID)
	require.Contains(t, suggestion.SynthesizedText, "cache expensive lookups")
	require.Contains(t, suggestion.SynthesizedText, "unbounded cache growth")
}

func TestNicheBestReplacesOnlyOnHigherScore(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.ConsiderForNiche("bugfix", "small bugfix tasks",
		types.NicheBestSolution{SolutionID: "sol-1", CompositeScore: 0.5}))
	best, err := s.BestForNiche("bugfix")
	require.NoError(t, err)
	require.Equal(t, "sol-1", best.Best.SolutionID)

	require.NoError(t, s.ConsiderForNiche("bugfix", "", types.NicheBestSolution{SolutionID: "sol-2", CompositeScore: 0.3}))
	best, err = s.BestForNiche("bugfix")
	require.NoError(t, err)
	require.Equal(t, "sol-1", best.Best.SolutionID, "lower-scoring candidate must not replace the best")

	require.NoError(t, s.ConsiderForNiche("bugfix", "", types.NicheBestSolution{SolutionID: "sol-3", CompositeScore: 0.9}))
	best, err = s.BestForNiche("bugfix")
	require.NoError(t, err)
	require.Equal(t, "sol-3", best.Best.SolutionID)
}
