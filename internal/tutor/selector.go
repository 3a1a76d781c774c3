package tutor

import (
	"math/rand/v2"
	"strings"

	"github.com/pavelanni/mathyou/internal/model"
)

// MasteryPrefix starts every mastery token.
const MasteryPrefix = "gemini_trigger_"

// MasteryToken returns the synthetic question id served once a concept is mastered.
func MasteryToken(conceptSlug string) string {
	return MasteryPrefix + conceptSlug
}

// ParseMasteryToken returns the concept slug of a mastery token.
func ParseMasteryToken(id string) (string, bool) {
	if !strings.HasPrefix(id, MasteryPrefix) {
		return "", false
	}
	return strings.TrimPrefix(id, MasteryPrefix), true
}

// SelectionKind tells which field of a Selection is set.
type SelectionKind int

const (
	SelectNone SelectionKind = iota
	SelectQuestion
	SelectMastery
)

// Selection is the active item for one concept.
type Selection struct {
	Kind     SelectionKind
	Question model.Question
	Token    string
}

// ID returns the id the client should request: the question's legacy id
// or the mastery token. It is empty for SelectNone.
func (s Selection) ID() string {
	switch s.Kind {
	case SelectQuestion:
		return s.Question.LegacyID
	case SelectMastery:
		return s.Token
	}
	return ""
}

// Select picks the active question of concept for tier. questions must be
// in insertion order. The result depends only on its arguments.
func Select(concept model.Concept, questions []model.Question, tier Tier, authenticated bool) Selection {
	if tier == Mastered {
		return Selection{Kind: SelectMastery, Token: MasteryToken(concept.Slug)}
	}
	if len(questions) == 0 {
		return Selection{}
	}

	target := tier.Difficulty()
	for _, q := range questions {
		if q.Difficulty == target {
			return Selection{Kind: SelectQuestion, Question: q}
		}
	}

	// Anonymous visitors always get something to look at. Signed-in users
	// see the gap rather than an arbitrary question.
	if !authenticated {
		return Selection{Kind: SelectQuestion, Question: questions[0]}
	}
	return Selection{}
}

// Intn is the random source used by SelectAnother.
type Intn func(n int) int

// SelectAnother picks uniformly among candidates that share current's
// concept and difficulty, excluding current itself. With no alternative
// it returns current. A nil rng uses math/rand/v2.
func SelectAnother(current model.Question, candidates []model.Question, rng Intn) model.Question {
	if rng == nil {
		rng = rand.IntN
	}
	var pool []model.Question
	for _, q := range candidates {
		if q.ID != current.ID && q.ConceptID == current.ConceptID && q.Difficulty == current.Difficulty {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return current
	}
	return pool[rng(len(pool))]
}
