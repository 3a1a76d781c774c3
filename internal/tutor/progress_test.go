package tutor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/mathyou/internal/model"
)

type fakeResponses struct {
	correct map[int64]bool
	err     error
	calls   int
}

func (f *fakeResponses) CorrectQuestionIDs(userID int64, ids []int64) ([]int64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []int64
	for _, id := range ids {
		if f.correct[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

var powerRule = model.Concept{ID: 1, Name: "Power Rule", Slug: "power-rule"}

func powerRuleQuestions() []model.Question {
	q := func(id int64, legacy string, d model.Difficulty, answer string) model.Question {
		return model.Question{
			ID: id, ConceptID: 1, LegacyID: legacy, Difficulty: d,
			Data: model.QuestionData{Type: model.TypeNumerical, Answer: model.StringAnswer(answer)},
		}
	}
	return []model.Question{
		q(1, "pr_easy_1", model.DifficultyEasy, "3x^2"),
		q(2, "pr_easy_2", model.DifficultyEasy, "6"),
		q(3, "pr_med_1", model.DifficultyMedium, "12"),
		q(4, "pr_hard_1", model.DifficultyHard, "-2"),
	}
}

func userID(id int64) *int64 { return &id }

func TestNextDifficulty(t *testing.T) {
	tests := []struct {
		name    string
		correct []int64
		want    Tier
	}{
		{"no correct answers", nil, TierEasy},
		{"one easy", []int64{1}, TierMedium},
		{"both easy", []int64{1, 2}, TierMedium},
		{"medium", []int64{1, 3}, TierHard},
		{"medium without easy", []int64{3}, TierHard},
		{"hard", []int64{4}, Mastered},
		{"everything", []int64{1, 2, 3, 4}, Mastered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeResponses{correct: map[int64]bool{}}
			for _, id := range tt.correct {
				f.correct[id] = true
			}
			got, err := NewEvaluator(f).NextDifficulty(context.Background(), userID(7), powerRule, powerRuleQuestions())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextDifficultyAnonymous(t *testing.T) {
	f := &fakeResponses{correct: map[int64]bool{4: true}}
	got, err := NewEvaluator(f).NextDifficulty(context.Background(), nil, powerRule, powerRuleQuestions())
	require.NoError(t, err)
	assert.Equal(t, TierEasy, got)
	assert.Zero(t, f.calls, "anonymous users must not hit the store")
}

func TestNextDifficultyNoQuestions(t *testing.T) {
	f := &fakeResponses{}
	got, err := NewEvaluator(f).NextDifficulty(context.Background(), userID(7), powerRule, nil)
	require.NoError(t, err)
	assert.Equal(t, TierEasy, got)
}

func TestNextDifficultyUnknownLabel(t *testing.T) {
	qs := []model.Question{{ID: 9, ConceptID: 1, Difficulty: "Challenging"}}
	f := &fakeResponses{correct: map[int64]bool{9: true}}
	got, err := NewEvaluator(f).NextDifficulty(context.Background(), userID(7), powerRule, qs)
	require.NoError(t, err)
	// An unknown label ranks below Easy, so the next tier is Easy.
	assert.Equal(t, TierEasy, got)
}

func TestNextDifficultyStoreError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewEvaluator(&fakeResponses{err: boom}).NextDifficulty(context.Background(), userID(7), powerRule, powerRuleQuestions())
	assert.ErrorIs(t, err, boom)
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierEasy, TierOf("Easy"))
	assert.Equal(t, TierHard, TierOf("Hard"))
	assert.Equal(t, TierUnknown, TierOf("easy"))
	assert.Equal(t, TierUnknown, TierOf(""))
	assert.Equal(t, "Mastered", Mastered.String())
	assert.Equal(t, "Medium", TierMedium.String())
	assert.Equal(t, model.Difficulty(""), Mastered.Difficulty())
}
