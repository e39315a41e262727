package learning

import (
	"math"
	"time"

	"github.com/standardbeagle/codegraph/internal/types"
)

// momentumCap is the maximum multiplier the success/usage ratio may apply to
// a decayed confidence value (spec.md §4.6 "up to 1.2x, capped").
const momentumCap = 1.2

// driftUsageThreshold and driftSuccessRatio gate the drift penalty (spec.md
// §4.6 "usage_count >= 5 and success_count/usage_count < 0.4").
const (
	driftUsageThreshold = 5
	driftSuccessRatio   = 0.4
)

// effectiveConfidence applies the half-life decay, momentum adjustment and
// drift penalty described in spec.md §4.6 to a pattern's stored fields,
// returning the query-time confidence and whether the pattern is drifting.
func effectiveConfidence(base float64, usageCount, successCount int, lastValidated, now time.Time, halfLifeDays float64) (float64, bool) {
	ageDays := now.Sub(lastValidated).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decayed := base
	if halfLifeDays > 0 {
		decayed = base * math.Exp(-math.Ln2*ageDays/halfLifeDays)
	}

	momentum := 1.0
	if usageCount > 0 {
		ratio := float64(successCount) / float64(usageCount)
		momentum = 1.0 + ratio*(momentumCap-1.0)
		if momentum > momentumCap {
			momentum = momentumCap
		}
	}
	effective := math.Min(decayed*momentum, 1.0)

	drifting := usageCount >= driftUsageThreshold && float64(successCount)/float64(usageCount) < driftSuccessRatio
	if drifting {
		effective /= 2
	}
	return effective, drifting
}

// scoredPattern pairs a stored pattern with its query-time confidence.
type scoredPattern struct {
	Pattern    types.Pattern
	Confidence float64
	Drifting   bool
}

func scorePatterns(patterns []types.Pattern, now time.Time, halfLifeDays float64) []scoredPattern {
	out := make([]scoredPattern, 0, len(patterns))
	for _, p := range patterns {
		conf, drifting := effectiveConfidence(p.BaseConfidence, p.UsageCount, p.SuccessCount, p.LastValidated, now, halfLifeDays)
		out = append(out, scoredPattern{Pattern: p, Confidence: conf, Drifting: drifting})
	}
	return out
}
