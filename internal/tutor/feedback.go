package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/mathyou/internal/cache"
	"github.com/pavelanni/mathyou/internal/i18n"
	"github.com/pavelanni/mathyou/internal/llm"
	"github.com/pavelanni/mathyou/internal/llm/prompts"
	"github.com/pavelanni/mathyou/internal/model"
)

const (
	masteryDifficulty  = "Real World Application"
	masteryExplanation = "This is an advanced application of the concept you have mastered."
	maxRecentConcepts  = 3
)

// Generator produces generated feedback, overviews and mastery problems.
// Every entry point degrades to static text; none returns an error.
type Generator struct {
	completer llm.Completer
	overviews cache.Cache
	mastery   cache.Cache
}

// NewGenerator builds a Generator. A nil completer means no provider key
// is configured. Pass a nil interface, not a typed nil *llm.Chain.
func NewGenerator(completer llm.Completer, overviews, mastery cache.Cache) *Generator {
	return &Generator{completer: completer, overviews: overviews, mastery: mastery}
}

// Enabled reports whether a completion provider is configured.
func (g *Generator) Enabled() bool {
	return g.completer != nil
}

// complete runs the chain and turns a panic into an error.
func (g *Generator) complete(ctx context.Context, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panicked: %v", r)
		}
	}()
	return g.completer.Complete(ctx, prompt)
}

// Feedback asks for personalized feedback on a graded answer. It returns
// ok=false when no provider is configured or every candidate failed; the
// caller then shows the question's stored explanation.
func (g *Generator) Feedback(ctx context.Context, q model.Question, submitted string, correct bool) (string, bool) {
	if g.completer == nil {
		return "", false
	}

	data := prompts.FeedbackData{
		ProblemText:   q.ProblemText,
		CorrectAnswer: q.Data.Answer.String(),
		StudentAnswer: submitted,
		Correct:       correct,
	}
	if q.Data.Type == model.TypeMultipleChoice {
		data.Choices = q.Data.Choices
		data.CorrectAnswer = choiceLabel(data.CorrectAnswer, q.Data.Choices)
		data.StudentAnswer = choiceLabel(submitted, q.Data.Choices)
	}

	prompt, err := prompts.Feedback(data)
	if err != nil {
		slog.ErrorContext(ctx, "build feedback prompt", "question", q.LegacyID, "error", err)
		return "", false
	}
	text, err := g.complete(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "feedback generation failed", "question", q.LegacyID, "error", err)
		return "", false
	}
	return text, true
}

// choiceLabel renders a valid choice index as "i (label)"; anything else is returned unchanged.
func choiceLabel(value string, choices []string) string {
	idx, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || idx < 0 || idx >= len(choices) {
		return value
	}
	return fmt.Sprintf("%d (%s)", idx, choices[idx])
}

// OverviewStats summarizes a learner's progress in one subject.
type OverviewStats struct {
	UserID         *int64
	SubjectID      int64
	SubjectName    string
	SolvedCount    int
	RecentConcepts []string
}

// NewOverviewStats derives stats from the learner's correct answers in a
// subject, newest first. Up to three distinct concept names are kept.
func NewOverviewStats(userID *int64, subject model.Subject, solved []model.SolvedConcept) OverviewStats {
	stats := OverviewStats{
		UserID:      userID,
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		SolvedCount: len(solved),
	}
	seen := map[string]bool{}
	for _, s := range solved {
		if seen[s.ConceptName] {
			continue
		}
		seen[s.ConceptName] = true
		stats.RecentConcepts = append(stats.RecentConcepts, s.ConceptName)
		if len(stats.RecentConcepts) == maxRecentConcepts {
			break
		}
	}
	return stats
}

// CacheKey identifies stats that must produce the same overview.
func (s OverviewStats) CacheKey() string {
	user := "anon"
	if s.UserID != nil {
		user = strconv.FormatInt(*s.UserID, 10)
	}
	concepts := append([]string(nil), s.RecentConcepts...)
	sort.Strings(concepts)
	return fmt.Sprintf("%s:%d:%d:%s", user, s.SubjectID, s.SolvedCount, strings.Join(concepts, "-"))
}

// Overview returns a welcome text for the subject. Generated texts are
// cached by stats; static fallbacks are not.
func (g *Generator) Overview(ctx context.Context, stats OverviewStats) string {
	key := stats.CacheKey()
	if text, ok := g.overviews.Get(key); ok {
		return text
	}

	if g.completer == nil {
		return i18n.Td(ctx, "OverviewUnavailable", map[string]any{"Name": stats.SubjectName})
	}

	prompt, err := prompts.Overview(prompts.OverviewData{
		Discipline:     stats.SubjectName,
		SolvedCount:    stats.SolvedCount,
		RecentConcepts: stats.RecentConcepts,
	})
	if err == nil {
		var text string
		text, err = g.complete(ctx, prompt)
		if err == nil {
			g.overviews.Set(key, text)
			return text
		}
	}
	slog.WarnContext(ctx, "overview generation failed", "subject", stats.SubjectName, "error", err)
	return i18n.Td(ctx, "OverviewFallback", map[string]any{"Name": stats.SubjectName})
}

// GeneratedProblem is a mastery problem shaped like a stored question.
type GeneratedProblem struct {
	ID          string             `json:"id"`
	Problem     string             `json:"problem"`
	Difficulty  string             `json:"difficulty"`
	Explanation string             `json:"explanation"`
	Type        model.QuestionType `json:"type"`
	Answer      string             `json:"answer"`
}

// MasteryProblem returns the real-world problem for a mastered concept.
// The first result per concept, generated or fallback, is cached and reused.
func (g *Generator) MasteryProblem(ctx context.Context, conceptSlug, conceptName string) GeneratedProblem {
	token := MasteryToken(conceptSlug)
	if raw, ok := g.mastery.Get(token); ok {
		var p GeneratedProblem
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return p
		}
	}

	p := GeneratedProblem{
		ID:          token,
		Difficulty:  masteryDifficulty,
		Explanation: masteryExplanation,
		Type:        model.TypeNumerical,
		Answer:      "0",
	}

	var err error
	if g.completer != nil {
		var prompt string
		prompt, err = prompts.Mastery(prompts.MasteryData{ConceptName: conceptName})
		if err == nil {
			p.Problem, err = g.complete(ctx, prompt)
		}
	}
	if g.completer == nil || err != nil {
		if err != nil {
			slog.WarnContext(ctx, "mastery generation failed", "concept", conceptSlug, "error", err)
		}
		p.Problem = i18n.Td(ctx, "MasteryFallback", map[string]any{"Name": conceptName})
	}

	if raw, err := json.Marshal(p); err == nil {
		g.mastery.Set(token, string(raw))
	}
	return p
}
