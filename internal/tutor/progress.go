// Package tutor holds the adaptive practice logic: which difficulty a
// learner should see next, which question to serve, how an answer is
// graded and how generated feedback is obtained.
package tutor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/mathyou/internal/model"
)

// Tier is a difficulty ordinal. Unrecognized labels rank as TierUnknown.
type Tier int

const (
	TierUnknown Tier = iota
	TierEasy
	TierMedium
	TierHard
	// Mastered means every stored tier has been solved.
	Mastered
)

var tierByDifficulty = map[model.Difficulty]Tier{
	model.DifficultyEasy:   TierEasy,
	model.DifficultyMedium: TierMedium,
	model.DifficultyHard:   TierHard,
}

// TierOf maps a difficulty label to its ordinal.
func TierOf(d model.Difficulty) Tier {
	return tierByDifficulty[d]
}

// Difficulty returns the label served for the tier, or "" for TierUnknown and Mastered.
func (t Tier) Difficulty() model.Difficulty {
	switch t {
	case TierEasy:
		return model.DifficultyEasy
	case TierMedium:
		return model.DifficultyMedium
	case TierHard:
		return model.DifficultyHard
	}
	return ""
}

func (t Tier) String() string {
	switch t {
	case Mastered:
		return "Mastered"
	case TierUnknown:
		return "Unknown"
	}
	return string(t.Difficulty())
}

// ResponseReader is the part of the store the evaluator reads.
type ResponseReader interface {
	CorrectQuestionIDs(userID int64, questionIDs []int64) ([]int64, error)
}

// Evaluator computes the next difficulty tier for a learner.
type Evaluator struct {
	responses ResponseReader
}

// NewEvaluator returns an Evaluator reading history from r.
func NewEvaluator(r ResponseReader) *Evaluator {
	return &Evaluator{responses: r}
}

// NextDifficulty returns the tier to serve for concept. Anonymous users
// (nil userID) and users without correct answers get TierEasy; otherwise
// the tier after the hardest one solved, or Mastered past TierHard.
func (e *Evaluator) NextDifficulty(ctx context.Context, userID *int64, concept model.Concept, questions []model.Question) (Tier, error) {
	if userID == nil || len(questions) == 0 {
		return TierEasy, nil
	}

	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	solved, err := e.responses.CorrectQuestionIDs(*userID, ids)
	if err != nil {
		return TierUnknown, fmt.Errorf("load progress for concept %s: %w", concept.Slug, err)
	}
	if len(solved) == 0 {
		return TierEasy, nil
	}

	solvedSet := make(map[int64]bool, len(solved))
	for _, id := range solved {
		solvedSet[id] = true
	}
	highest := TierUnknown
	for _, q := range questions {
		if solvedSet[q.ID] {
			highest = max(highest, TierOf(q.Difficulty))
		}
	}

	next := highest + 1
	if next > TierHard {
		next = Mastered
	}
	slog.DebugContext(ctx, "next difficulty", "user", *userID, "concept", concept.Slug, "solved", len(solved), "tier", next)
	return next, nil
}
