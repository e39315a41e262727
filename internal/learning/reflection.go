package learning

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/standardbeagle/codegraph/internal/types"
)

// lowQualityTag is appended to a reflected record's scope tags when its
// lesson text does not follow the "When X, do Y because Z" schema (spec.md
// §4.7 "still stored but flagged low_quality=true"). types.Scope has no
// dedicated flag field, so the flag rides along as an ordinary tag, which
// keeps it queryable through the same scope.Matches path as everything else.
const lowQualityTag = "low_quality"

var lessonSchema = regexp.MustCompile(`(?i)^\s*when\s+.+,\s*do\s+.+\s+because\s+.+`)

func lessonIsWellFormed(lesson string) bool {
	return lessonSchema.MatchString(lesson)
}

// ReflectionResult reports what reflect() created.
type ReflectionResult struct {
	PatternID  string
	FailureID  string
	LowQuality bool
}

// Reflect reads the terminal outcome of solutionID and converts it into a
// pattern, a failure, or both, per spec.md §4.7 reflect(). mechanism may be
// empty.
func (s *Store) Reflect(solutionID, intent, mechanism, rootCause, lesson string, confidence float64, sc types.Scope) (ReflectionResult, error) {
	sol, err := s.db.SolutionByID(solutionID)
	if err != nil {
		return ReflectionResult{}, fmt.Errorf("load solution %s: %w", solutionID, err)
	}
	if sol == nil {
		return ReflectionResult{}, types.NewUserError("solution %s not found", solutionID)
	}

	lowQuality := !lessonIsWellFormed(lesson)
	taggedScope := sc
	if lowQuality {
		taggedScope.Tags = append(append([]string{}, sc.Tags...), lowQualityTag)
	}

	result := ReflectionResult{LowQuality: lowQuality}

	switch sol.Outcome {
	case types.OutcomeSuccess:
		id, err := s.extractReflectedPattern(intent, mechanism, sol, taggedScope, confidence)
		if err != nil {
			return result, err
		}
		result.PatternID = id

	case types.OutcomeFailure:
		id, err := s.RecordFailure(rootCause, lesson, types.SeverityMajor, taggedScope)
		if err != nil {
			return result, err
		}
		result.FailureID = id

	case types.OutcomePartial:
		scaled := confidence * 0.6
		pid, err := s.extractReflectedPattern(intent, mechanism, sol, taggedScope, scaled)
		if err != nil {
			return result, err
		}
		fid, err := s.RecordFailure(rootCause, lesson, types.SeverityMajor, taggedScope)
		if err != nil {
			return result, err
		}
		result.PatternID, result.FailureID = pid, fid

	default:
		return result, types.NewUserError("solution %s has no terminal outcome (outcome=%s)", solutionID, sol.Outcome)
	}

	return result, nil
}

// extractReflectedPattern draws the pattern's examples from the solution's
// recorded files-modified, matching spec.md §4.7's "examples drawn from
// files-modified excerpts if callers pass them".
func (s *Store) extractReflectedPattern(intent, mechanism string, sol *types.Solution, sc types.Scope, confidence float64) (string, error) {
	var examples []string
	if len(sol.FilesModified) > 0 {
		examples = append(examples, sol.FilesModified...)
	}
	return s.ExtractPattern(intent, mechanism, examples, sc, confidence)
}

// Suggestion is the deterministic bundle returned by suggest_approach
// (spec.md §4.7).
type Suggestion struct {
	Patterns        []RankedPattern
	Failures        []types.Failure
	PriorSolution   *types.Solution
	SynthesizedText string
}

// minSharedTokens is the word-token overlap threshold for treating a past
// solution's task as relevant to a new one (spec.md §4.7 "overlap on >= 3
// word tokens").
const minSharedTokens = 3

const recentSolutionScanLimit = 50

// SuggestApproach assembles the top-3 scope-matching patterns, all critical
// plus top-3 scope-matching failures, the most recent successful solution
// whose task shares enough word tokens with task, and a template-synthesized
// textual approach (spec.md §4.7 suggest_approach). It performs no
// language-model inference.
func (s *Store) SuggestApproach(task string, sc types.Scope) (Suggestion, error) {
	patterns, err := s.RecallPatterns(sc, 3)
	if err != nil {
		return Suggestion{}, err
	}
	failures, err := s.RecallFailures(sc, 3)
	if err != nil {
		return Suggestion{}, err
	}

	recent, err := s.db.RecentSuccessfulSolutions(recentSolutionScanLimit)
	if err != nil {
		return Suggestion{}, fmt.Errorf("load recent solutions: %w", err)
	}
	taskTokens := wordTokenSet(task)
	var prior *types.Solution
	for i := range recent {
		if sharedTokenCount(taskTokens, wordTokenSet(recent[i].Task)) >= minSharedTokens {
			prior = &recent[i]
			break
		}
	}

	text := synthesize(task, patterns, failures, prior)
	return Suggestion{Patterns: patterns, Failures: failures, PriorSolution: prior, SynthesizedText: text}, nil
}

func wordTokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func sharedTokenCount(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

// synthesize builds the textual approach by naming the referenced records,
// with no generative inference (spec.md §4.7 "deterministic template").
func synthesize(task string, patterns []RankedPattern, failures []types.Failure, prior *types.Solution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "For %q:", task)

	if len(patterns) == 0 {
		b.WriteString(" no known patterns apply yet.")
	} else {
		b.WriteString(" apply ")
		for i, p := range patterns {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s (%.2f confidence)", p.Pattern.Intent, p.Confidence)
		}
		b.WriteString(".")
	}

	if len(failures) > 0 {
		b.WriteString(" Avoid: ")
		for i, f := range failures {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s (%s)", f.Cause, f.Severity)
		}
		b.WriteString(".")
	}

	if prior != nil {
		fmt.Fprintf(&b, " A prior solution for %q (id %s) succeeded and may be a useful template.", prior.Task, prior.ID)
	}

	return b.String()
}
