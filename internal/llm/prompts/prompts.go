// Package prompts renders the text prompts sent to the completion chain.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const maxAnswerRunes = 2000

var studentAnswerRegex = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// FeedbackData holds template data for answer feedback.
type FeedbackData struct {
	ProblemText   string
	Choices       []string
	CorrectAnswer string
	StudentAnswer string
	Correct       bool
}

// OverviewData holds template data for a discipline overview.
type OverviewData struct {
	Discipline     string
	SolvedCount    int
	RecentConcepts []string
}

// MasteryData holds template data for a generated mastery problem.
type MasteryData struct {
	ConceptName string
}

func load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.New("prompts").
			Funcs(template.FuncMap{"join": strings.Join}).
			ParseFS(templateFS, "templates/*.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Feedback builds the prompt asking for feedback on a submitted answer.
func Feedback(d FeedbackData) (string, error) {
	d.StudentAnswer = sanitizeAnswer(d.StudentAnswer)
	return render("feedback.tmpl", d)
}

// Overview builds the prompt for a discipline welcome overview.
func Overview(d OverviewData) (string, error) {
	return render("overview.tmpl", d)
}

// Mastery builds the prompt for a real-world problem on a mastered concept.
func Mastery(d MasteryData) (string, error) {
	return render("mastery.tmpl", d)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + " [truncated]"
	}

	return answer
}
