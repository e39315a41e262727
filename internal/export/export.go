// Package export implements the learning store's on-demand sync/export
// (spec.md §4.8 C8): a read-only snapshot of high-confidence patterns and
// failures written atomically to the project's hidden config directory.
//
// Grounded on internal/config's own Store.Save (written for this project's
// config.toml persistence), which in turn follows codenerd's
// write-temp-then-rename idiom used throughout its store layer for anything
// that must never leave a torn file visible on disk.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

// minExportConfidence is the *base* confidence floor below which a record is
// omitted from export (spec.md §4.8 "base confidence >= 0.5").
const minExportConfidence = 0.5

// patternRecord and failureRecord are the stable serialized shapes written
// to patterns.json/failures.json; they deliberately expose only what a
// consuming agent needs, not the full storage.LearningDB row.
type patternRecord struct {
	ID             string    `json:"id"`
	Intent         string    `json:"intent"`
	Mechanism      string    `json:"mechanism,omitempty"`
	Examples       []string  `json:"examples,omitempty"`
	ScopeGlobs     []string  `json:"scope_globs,omitempty"`
	ScopeTags      []string  `json:"scope_tags,omitempty"`
	BaseConfidence float64   `json:"base_confidence"`
	UsageCount     int       `json:"usage_count"`
	SuccessCount   int       `json:"success_count"`
	LastValidated  time.Time `json:"last_validated"`
}

type failureRecord struct {
	ID             string                `json:"id"`
	Cause          string                `json:"cause"`
	Avoidance      string                `json:"avoidance"`
	Severity       types.FailureSeverity `json:"severity"`
	ScopeGlobs     []string              `json:"scope_globs,omitempty"`
	ScopeTags      []string              `json:"scope_tags,omitempty"`
	TimesPrevented int                   `json:"times_prevented"`
}

// Stats summarizes one export run.
type Stats struct {
	PatternsWritten int
	FailuresWritten int
}

// Export reads every pattern whose base confidence meets the floor and every
// failure (failures carry no confidence, so none is filtered out) and writes
// them, ordered by id, to patternsPath/failuresPath via a
// temp-file-then-rename so no reader ever observes a partially written file.
// Export performs no database writes (spec.md §4.8 "read-only with respect
// to the database").
func Export(db *storage.LearningDB, patternsPath, failuresPath string) (Stats, error) {
	patterns, err := db.AllPatterns()
	if err != nil {
		return Stats{}, fmt.Errorf("load patterns: %w", err)
	}
	failures, err := db.AllFailures()
	if err != nil {
		return Stats{}, fmt.Errorf("load failures: %w", err)
	}

	patternOut := []patternRecord{}
	for _, p := range patterns {
		if p.BaseConfidence < minExportConfidence {
			continue
		}
		patternOut = append(patternOut, patternRecord{
			ID: p.ID, Intent: p.Intent, Mechanism: p.Mechanism, Examples: p.Examples,
			ScopeGlobs: p.Scope.Globs, ScopeTags: p.Scope.Tags,
			BaseConfidence: p.BaseConfidence, UsageCount: p.UsageCount,
			SuccessCount: p.SuccessCount, LastValidated: p.LastValidated,
		})
	}

	failureOut := []failureRecord{}
	for _, f := range failures {
		failureOut = append(failureOut, failureRecord{
			ID: f.ID, Cause: f.Cause, Avoidance: f.Avoidance, Severity: f.Severity,
			ScopeGlobs: f.Scope.Globs, ScopeTags: f.Scope.Tags, TimesPrevented: f.TimesPrevented,
		})
	}

	if err := writeAtomicJSON(patternsPath, patternOut); err != nil {
		return Stats{}, fmt.Errorf("write patterns export: %w", err)
	}
	if err := writeAtomicJSON(failuresPath, failureOut); err != nil {
		return Stats{}, fmt.Errorf("write failures export: %w", err)
	}

	return Stats{PatternsWritten: len(patternOut), FailuresWritten: len(failureOut)}, nil
}

// writeAtomicJSON encodes v and swaps it into path via a sibling temp file,
// never leaving a torn file visible to a concurrent reader.
func writeAtomicJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
