// Package learning implements the learning store's business logic (spec.md
// §4.6 C6): confidence decay/momentum/drift, scoped recall, pattern and
// failure extraction, solution attempts and lineage queries. It sits on top
// of the pure-persistence storage.LearningDB, the way codenerd's
// internal/campaign package layers decomposition/retry logic on top of its
// flat internal/store database handles.
package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/codegraph/internal/config"
	"github.com/standardbeagle/codegraph/internal/scope"
	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

// Store wires storage.LearningDB to the confidence model and recall/extract
// operations of spec.md §4.6-§4.7.
type Store struct {
	db  *storage.LearningDB
	cfg func() *config.Config
}

// New constructs a Store. cfg is called on every query so a hot-reloaded
// decay_half_life takes effect immediately.
func New(db *storage.LearningDB, cfg func() *config.Config) *Store {
	return &Store{db: db, cfg: cfg}
}

func (s *Store) halfLife() float64 {
	hl := s.cfg().Learning.DecayHalfLifeDays
	if hl <= 0 {
		hl = 90
	}
	return hl
}

// RankedPattern pairs a stored pattern with its query-time effective
// confidence and drift flag (spec.md §4.6 "surfaces as drifting").
type RankedPattern struct {
	Pattern    types.Pattern
	Confidence float64
	Drifting   bool
}

// RecallPatterns ranks scope-matching patterns by effective confidence,
// descending, capped at limit (spec.md §4.6 recall_patterns).
func (s *Store) RecallPatterns(query types.Scope, limit int) ([]RankedPattern, error) {
	all, err := s.db.AllPatterns()
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	now := time.Now()
	scored := scorePatterns(all, now, s.halfLife())

	var matched []scoredPattern
	for _, sp := range scored {
		if scope.Matches(sp.Pattern.Scope, query) {
			matched = append(matched, sp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Confidence > matched[j].Confidence })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]RankedPattern, 0, len(matched))
	for _, sp := range matched {
		out = append(out, RankedPattern{Pattern: sp.Pattern, Confidence: sp.Confidence, Drifting: sp.Drifting})
	}
	return out, nil
}

var severityRank = map[types.FailureSeverity]int{
	types.SeverityCritical: 3,
	types.SeverityMajor:    2,
	types.SeverityMinor:    1,
}

// RecallFailures returns the union of every critical-severity failure
// (unconditional, including against a bare empty query) with the
// scope-matching failures ranked by times_prevented desc then severity,
// capped at limit (spec.md §4.6 recall_failures).
func (s *Store) RecallFailures(query types.Scope, limit int) ([]types.Failure, error) {
	all, err := s.db.AllFailures()
	if err != nil {
		return nil, fmt.Errorf("load failures: %w", err)
	}

	var critical, matching []types.Failure
	for _, f := range all {
		if f.Severity == types.SeverityCritical {
			critical = append(critical, f)
		}
		if scope.Matches(f.Scope, query) {
			matching = append(matching, f)
		}
	}
	sort.Slice(critical, func(i, j int) bool { return critical[i].TimesPrevented > critical[j].TimesPrevented })
	sort.Slice(matching, func(i, j int) bool {
		if matching[i].TimesPrevented != matching[j].TimesPrevented {
			return matching[i].TimesPrevented > matching[j].TimesPrevented
		}
		return severityRank[matching[i].Severity] > severityRank[matching[j].Severity]
	})
	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}

	seen := make(map[string]bool, len(critical)+len(matching))
	var out []types.Failure
	for _, f := range critical {
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	for _, f := range matching {
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// ExtractPattern stores a new pattern directly (spec.md §4.6 extract_pattern).
func (s *Store) ExtractPattern(intent, mechanism string, examples []string, sc types.Scope, confidence float64) (string, error) {
	now := time.Now()
	p := types.Pattern{
		ID:             uuid.NewString(),
		Intent:         intent,
		Mechanism:      mechanism,
		Examples:       examples,
		Scope:          sc,
		BaseConfidence: confidence,
		LastValidated:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.UpsertPattern(p); err != nil {
		return "", fmt.Errorf("store pattern: %w", err)
	}
	return p.ID, nil
}

// RecordFailure stores a new failure directly (spec.md §4.6 record_failure).
func (s *Store) RecordFailure(cause, avoidance string, severity types.FailureSeverity, sc types.Scope) (string, error) {
	now := time.Now()
	f := types.Failure{
		ID:        uuid.NewString(),
		Cause:     cause,
		Avoidance: avoidance,
		Severity:  severity,
		Scope:     sc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.UpsertFailure(f); err != nil {
		return "", fmt.Errorf("store failure: %w", err)
	}
	return f.ID, nil
}

// RecordAttempt opens a new in-progress solution, optionally chained to a
// parent (spec.md §4.6 record_attempt).
func (s *Store) RecordAttempt(task, plan, parentID string) (string, error) {
	sol := types.Solution{
		ID:        uuid.NewString(),
		Task:      task,
		Plan:      plan,
		Outcome:   types.OutcomeInProgress,
		ParentID:  parentID,
		CreatedAt: time.Now(),
	}
	if err := s.db.InsertSolution(sol); err != nil {
		return "", fmt.Errorf("record attempt: %w", err)
	}
	return sol.ID, nil
}

// RecordOutcome finalizes a solution's terminal state; the underlying
// FinalizeSolution call refuses to mutate an already-finalized row (spec.md
// §4.6 record_outcome "no further mutations permitted").
func (s *Store) RecordOutcome(solutionID string, outcome types.SolutionOutcome, metrics map[string]float64, files, symbols []string) error {
	return s.db.FinalizeSolution(solutionID, outcome, metrics, files, symbols, time.Now())
}

// LineageEntry is one node of a query_lineage walk.
type LineageEntry struct {
	Solution types.Solution
	Depth    int
}

// QueryLineage breadth-first-walks the parent/child chain touching any
// solution whose task contains substr, returning an ordered (solution,
// depth) list seeded at depth 0 by the matching solutions themselves
// (spec.md §4.6 query_lineage).
func (s *Store) QueryLineage(taskSubstring string) ([]LineageEntry, error) {
	seeds, err := s.db.SolutionsByTaskSubstring(taskSubstring)
	if err != nil {
		return nil, fmt.Errorf("find seed solutions: %w", err)
	}

	visited := make(map[string]bool)
	var out []LineageEntry
	type queued struct {
		sol   types.Solution
		depth int
	}
	var queue []queued
	for _, sd := range seeds {
		if !visited[sd.ID] {
			visited[sd.ID] = true
			queue = append(queue, queued{sol: sd, depth: 0})
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, LineageEntry{Solution: cur.sol, Depth: cur.depth})

		if cur.sol.ParentID != "" && !visited[cur.sol.ParentID] {
			parent, err := s.db.SolutionByID(cur.sol.ParentID)
			if err != nil {
				return nil, fmt.Errorf("load parent %s: %w", cur.sol.ParentID, err)
			}
			if parent != nil {
				visited[parent.ID] = true
				queue = append(queue, queued{sol: *parent, depth: cur.depth + 1})
			}
		}

		children, err := s.db.SolutionsByParent(cur.sol.ID)
		if err != nil {
			return nil, fmt.Errorf("load children of %s: %w", cur.sol.ID, err)
		}
		for _, c := range children {
			if !visited[c.ID] {
				visited[c.ID] = true
				queue = append(queue, queued{sol: c, depth: cur.depth + 1})
			}
		}
	}
	return out, nil
}
