package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/mathyou/internal/cache"
	"github.com/pavelanni/mathyou/internal/llm"
	"github.com/pavelanni/mathyou/internal/model"
)

func newGenerator(providers ...*llm.MockProvider) *Generator {
	if len(providers) == 0 {
		return NewGenerator(nil, cache.NewMemory(), cache.NewMemory())
	}
	var cands []llm.Candidate
	for i, p := range providers {
		cands = append(cands, llm.Candidate{Provider: p, Model: "model-" + string(rune('a'+i))})
	}
	return NewGenerator(llm.NewChain(cands, 0), cache.NewMemory(), cache.NewMemory())
}

func failing() llm.MockResponse {
	return llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("503")}}
}

func TestFeedbackFirstSuccessWins(t *testing.T) {
	first := llm.NewMockProvider(failing())
	second := llm.NewMockProvider(llm.MockResponse{Text: "Nice work."})
	g := newGenerator(first, second)

	text, ok := g.Feedback(context.Background(), powerRuleQuestions()[0], "3x^2", true)
	assert.True(t, ok)
	assert.Equal(t, "Nice work.", text)
	assert.Equal(t, 1, first.CallCount())
	assert.Equal(t, 1, second.CallCount())
	assert.Contains(t, second.Calls[0].Prompt, "3x^2")
}

func TestFeedbackAllFail(t *testing.T) {
	g := newGenerator(llm.NewMockProvider(failing()), llm.NewMockProvider(failing()))
	text, ok := g.Feedback(context.Background(), powerRuleQuestions()[0], "2x", false)
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestFeedbackProviderPanics(t *testing.T) {
	g := newGenerator(llm.NewMockProvider(llm.MockResponse{Panic: true}))
	assert.NotPanics(t, func() {
		_, ok := g.Feedback(context.Background(), powerRuleQuestions()[0], "2x", false)
		assert.False(t, ok)
	})
}

func TestFeedbackDisabled(t *testing.T) {
	g := newGenerator()
	assert.False(t, g.Enabled())
	_, ok := g.Feedback(context.Background(), powerRuleQuestions()[0], "3x^2", true)
	assert.False(t, ok)
}

func TestFeedbackMultipleChoiceLabels(t *testing.T) {
	p := llm.NewMockProvider(llm.MockResponse{Text: "ok"})
	g := newGenerator(p)
	q := model.Question{
		LegacyID:    "mc",
		ProblemText: "Pick one",
		Data: model.QuestionData{
			Type:    model.TypeMultipleChoice,
			Choices: []string{"$20x^4$", "$4x^4$"},
			Answer:  model.AnswerValue(json.RawMessage(`0`)),
		},
	}
	_, ok := g.Feedback(context.Background(), q, "1", false)
	require.True(t, ok)
	prompt := p.Calls[0].Prompt
	assert.Contains(t, prompt, "0 ($20x^4$)")
	assert.Contains(t, prompt, "1 ($4x^4$)")
}

func TestChoiceLabel(t *testing.T) {
	choices := []string{"a", "b"}
	assert.Equal(t, "1 (b)", choiceLabel("1", choices))
	assert.Equal(t, "5", choiceLabel("5", choices))
	assert.Equal(t, "x", choiceLabel("x", choices))
}

func TestNewOverviewStats(t *testing.T) {
	solved := []model.SolvedConcept{
		{QuestionID: 5, ConceptName: "Chain Rule"},
		{QuestionID: 4, ConceptName: "Power Rule"},
		{QuestionID: 3, ConceptName: "Chain Rule"},
		{QuestionID: 2, ConceptName: "Derivative"},
		{QuestionID: 1, ConceptName: "Limits"},
	}
	stats := NewOverviewStats(userID(3), model.Subject{ID: 1, Name: "Calculus"}, solved)
	assert.Equal(t, 5, stats.SolvedCount)
	assert.Equal(t, []string{"Chain Rule", "Power Rule", "Derivative"}, stats.RecentConcepts)
	assert.Equal(t, "3:1:5:Chain Rule-Derivative-Power Rule", stats.CacheKey())

	anon := NewOverviewStats(nil, model.Subject{ID: 2, Name: "Trigonometry"}, nil)
	assert.Equal(t, "anon:2:0:", anon.CacheKey())
}

func TestOverviewCachedPerStats(t *testing.T) {
	p := llm.NewMockProvider(llm.MockResponse{Text: "Welcome back!"}, llm.MockResponse{Text: "second"})
	g := newGenerator(p)
	stats := NewOverviewStats(userID(1), model.Subject{ID: 1, Name: "Calculus"}, nil)

	for range 3 {
		assert.Equal(t, "Welcome back!", g.Overview(context.Background(), stats))
	}
	assert.Equal(t, 1, p.CallCount())

	stats.SolvedCount = 1
	assert.Equal(t, "second", g.Overview(context.Background(), stats))
	assert.Equal(t, 2, p.CallCount())
}

func TestOverviewFallbackNotCached(t *testing.T) {
	p := llm.NewMockProvider(failing(), llm.MockResponse{Text: "Generated"})
	g := newGenerator(p)
	stats := NewOverviewStats(nil, model.Subject{ID: 1, Name: "Calculus"}, nil)

	assert.Equal(t, "Welcome to Calculus. Let's get started.", g.Overview(context.Background(), stats))
	assert.Equal(t, "Generated", g.Overview(context.Background(), stats))
}

func TestOverviewDisabled(t *testing.T) {
	g := newGenerator()
	stats := NewOverviewStats(nil, model.Subject{ID: 1, Name: "Calculus"}, nil)
	got := g.Overview(context.Background(), stats)
	assert.True(t, strings.HasPrefix(got, "Welcome to Calculus."), got)
	assert.Contains(t, got, "unavailable")
}

func TestMasteryProblem(t *testing.T) {
	p := llm.NewMockProvider(llm.MockResponse{Text: "A ladder slides down a wall..."})
	g := newGenerator(p)

	got := g.MasteryProblem(context.Background(), "power-rule", "Power Rule")
	assert.Equal(t, "gemini_trigger_power-rule", got.ID)
	assert.Equal(t, "A ladder slides down a wall...", got.Problem)
	assert.Equal(t, "Real World Application", got.Difficulty)
	assert.Equal(t, model.TypeNumerical, got.Type)
	assert.Equal(t, "0", got.Answer)

	again := g.MasteryProblem(context.Background(), "power-rule", "Power Rule")
	assert.Equal(t, got, again)
	assert.Equal(t, 1, p.CallCount())
}

func TestMasteryProblemFallbackCached(t *testing.T) {
	p := llm.NewMockProvider(failing(), llm.MockResponse{Text: "late success"})
	g := newGenerator(p)

	got := g.MasteryProblem(context.Background(), "chain-rule", "Chain Rule")
	assert.Contains(t, got.Problem, "You've mastered Chain Rule")

	again := g.MasteryProblem(context.Background(), "chain-rule", "Chain Rule")
	assert.Equal(t, got.Problem, again.Problem)
	assert.Equal(t, 1, p.CallCount())
}
