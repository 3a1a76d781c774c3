package tutor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pavelanni/mathyou/internal/model"
)

func TestSelect(t *testing.T) {
	qs := powerRuleQuestions()
	tests := []struct {
		name          string
		questions     []model.Question
		tier          Tier
		authenticated bool
		wantKind      SelectionKind
		wantID        string
	}{
		{"first easy in insertion order", qs, TierEasy, true, SelectQuestion, "pr_easy_1"},
		{"medium", qs, TierMedium, true, SelectQuestion, "pr_med_1"},
		{"hard", qs, TierHard, false, SelectQuestion, "pr_hard_1"},
		{"mastered", qs, Mastered, true, SelectMastery, "gemini_trigger_power-rule"},
		{"missing tier anonymous", qs[:2], TierHard, false, SelectQuestion, "pr_easy_1"},
		{"missing tier signed in", qs[:2], TierHard, true, SelectNone, ""},
		{"no questions", nil, TierEasy, false, SelectNone, ""},
		{"no questions mastered", nil, Mastered, true, SelectMastery, "gemini_trigger_power-rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(powerRule, tt.questions, tt.tier, tt.authenticated)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantID, got.ID())
		})
	}
}

func TestSelectDeterministic(t *testing.T) {
	qs := powerRuleQuestions()
	first := Select(powerRule, qs, TierEasy, true)
	for range 20 {
		assert.Equal(t, first, Select(powerRule, qs, TierEasy, true))
	}
}

func TestMasteryToken(t *testing.T) {
	token := MasteryToken("chain-rule")
	assert.Equal(t, "gemini_trigger_chain-rule", token)

	slug, ok := ParseMasteryToken(token)
	assert.True(t, ok)
	assert.Equal(t, "chain-rule", slug)

	_, ok = ParseMasteryToken("pr_easy_1")
	assert.False(t, ok)
}

func TestSelectAnother(t *testing.T) {
	qs := powerRuleQuestions()
	extra := model.Question{ID: 5, ConceptID: 1, LegacyID: "pr_easy_3", Difficulty: model.DifficultyEasy}
	other := model.Question{ID: 6, ConceptID: 2, LegacyID: "cr_easy_1", Difficulty: model.DifficultyEasy}
	candidates := append(qs, extra, other)

	var gotN int
	pick := func(i int) Intn {
		return func(n int) int {
			gotN = n
			return i
		}
	}

	got := SelectAnother(qs[0], candidates, pick(0))
	assert.Equal(t, 2, gotN, "pool is the other easy power-rule questions")
	assert.Equal(t, "pr_easy_2", got.LegacyID)

	got = SelectAnother(qs[0], candidates, pick(1))
	assert.Equal(t, "pr_easy_3", got.LegacyID)
}

func TestSelectAnotherNoAlternative(t *testing.T) {
	qs := powerRuleQuestions()
	got := SelectAnother(qs[2], qs, func(int) int {
		t.Fatal("rng must not be called without alternatives")
		return 0
	})
	assert.Equal(t, qs[2], got)
}

func TestSelectAnotherDefaultRNG(t *testing.T) {
	qs := powerRuleQuestions()
	for range 10 {
		got := SelectAnother(qs[0], qs, nil)
		assert.Equal(t, "pr_easy_2", got.LegacyID)
	}
}
