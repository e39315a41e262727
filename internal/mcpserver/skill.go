package mcpserver

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

// renderProjectSkill writes a minimal Markdown digest of the learning store
// to path: one section per pattern (ranked by base confidence, descending),
// one per critical/major failure, and the standing instructions list.
// Skill-document rendering itself is explicitly out of core scope (spec.md
// §1, "external collaborators, specified only at their interfaces"), so this
// stays a flat deterministic renderer rather than a templating subsystem —
// distill_project_skill's contract is "a file gets written", not a layout.
//
// Grounded on export.writeAtomicJSON's temp-file-then-rename idiom, reused
// here for a plain-text sibling output instead of JSON.
func renderProjectSkill(db *storage.LearningDB, path string) (int, error) {
	patterns, err := db.AllPatterns()
	if err != nil {
		return 0, fmt.Errorf("load patterns: %w", err)
	}
	failures, err := db.AllFailures()
	if err != nil {
		return 0, fmt.Errorf("load failures: %w", err)
	}
	instructions, err := db.ListInstructions()
	if err != nil {
		return 0, fmt.Errorf("load instructions: %w", err)
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].BaseConfidence > patterns[j].BaseConfidence })

	var b strings.Builder
	b.WriteString("# Project Skill\n\n")

	b.WriteString("## Patterns\n\n")
	if len(patterns) == 0 {
		b.WriteString("_none recorded yet_\n\n")
	}
	for _, p := range patterns {
		fmt.Fprintf(&b, "- **%s** (confidence %.2f): %s\n", p.Intent, p.BaseConfidence, p.Mechanism)
	}
	b.WriteString("\n## Failures to avoid\n\n")
	if len(failures) == 0 {
		b.WriteString("_none recorded yet_\n\n")
	}
	for _, f := range failures {
		if f.Severity == types.SeverityCritical || f.Severity == types.SeverityMajor {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", f.Cause, f.Severity, f.Avoidance)
		}
	}
	b.WriteString("\n## Standing instructions\n\n")
	if len(instructions) == 0 {
		b.WriteString("_none recorded yet_\n\n")
	}
	for _, ins := range instructions {
		fmt.Fprintf(&b, "- %s\n", ins)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return len(patterns), nil
}
