package learning

import (
	"fmt"

	"github.com/standardbeagle/codegraph/internal/types"
)

// Niches are deliberately reduced to store/retrieve-best-per-niche, per
// spec.md's Non-goals ("not a general-purpose clustering engine"). There is
// no feature-vector distance computation here; a candidate only replaces the
// stored best when its composite score is strictly higher.

// ConsiderForNiche records candidate as the niche's best solution if it
// beats (or there is no) existing best (spec.md §4.10 "store/retrieve
// best-per-niche only").
func (s *Store) ConsiderForNiche(taskType, description string, candidate types.NicheBestSolution) error {
	niches, err := s.db.ListNiches()
	if err != nil {
		return fmt.Errorf("load niches: %w", err)
	}
	var existing *types.Niche
	for i := range niches {
		if niches[i].TaskType == taskType {
			existing = &niches[i]
			break
		}
	}

	if existing != nil && existing.Best != nil && existing.Best.CompositeScore >= candidate.CompositeScore {
		return nil
	}

	n := types.Niche{TaskType: taskType, Description: description, Best: &candidate}
	if existing != nil && description == "" {
		n.Description = existing.Description
	}
	return s.db.UpsertNicheBest(n)
}

// BestForNiche returns the recorded best solution for a task type, if any.
func (s *Store) BestForNiche(taskType string) (*types.Niche, error) {
	niches, err := s.db.ListNiches()
	if err != nil {
		return nil, fmt.Errorf("load niches: %w", err)
	}
	for i := range niches {
		if niches[i].TaskType == taskType {
			return &niches[i], nil
		}
	}
	return nil, nil
}

// ListNiches returns every stored niche.
func (s *Store) ListNiches() ([]types.Niche, error) {
	return s.db.ListNiches()
}
