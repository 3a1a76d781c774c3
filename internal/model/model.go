package model

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// User represents a registered learner.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PasswordReset is a one-time token that lets a user set a new password.
type PasswordReset struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Difficulty is the free-form difficulty label stored on a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// QuestionType tells the client how to render the answer input.
type QuestionType string

const (
	TypeNumerical      QuestionType = "numerical"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeVector         QuestionType = "vector"
)

// Subject is a top-level discipline such as Trigonometry.
type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Concept is a sub-topic of a subject that owns practice questions.
type Concept struct {
	ID                        int64  `json:"id"`
	SubjectID                 int64  `json:"subject_id"`
	Name                      string `json:"name"`
	Slug                      string `json:"slug"`
	Formula                   string `json:"formula"`
	Explanation               string `json:"explanation"`
	CoreIdea                  string `json:"core_idea"`
	RealWorldApplication      string `json:"real_world_application"`
	MathematicalDemonstration string `json:"mathematical_demonstration"`
	StudyPlan                 string `json:"study_plan"`
}

// AnswerValue keeps the stored answer exactly as it appeared in JSON:
// a string, a number or a choice index.
type AnswerValue json.RawMessage

// StringAnswer builds an AnswerValue holding a JSON string.
func StringAnswer(s string) AnswerValue {
	b, _ := json.Marshal(s)
	return AnswerValue(b)
}

// String renders the answer the way it was written: strings unquoted,
// numbers verbatim. 5 and 5.0 therefore stay different.
func (a AnswerValue) String() string {
	raw := bytes.TrimSpace(a)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// MarshalJSON implements json.Marshaler.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(a)) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	*a = append((*a)[0:0], data...)
	return nil
}

// QuestionData is the flexible payload of a question.
type QuestionData struct {
	Type    QuestionType `json:"type"`
	Choices []string     `json:"choices,omitempty"`
	Answer  AnswerValue  `json:"answer"`
}

// Question is a stored practice problem.
type Question struct {
	ID          int64        `json:"-"`
	ConceptID   int64        `json:"-"`
	LegacyID    string       `json:"id"`
	ProblemText string       `json:"problem"`
	Difficulty  Difficulty   `json:"difficulty"`
	Explanation string       `json:"explanation"`
	Data        QuestionData `json:"data"`
}

// ResponseData is what the learner submitted plus any derived feedback.
type ResponseData struct {
	Answer        string `json:"answer"`
	AIExplanation string `json:"ai_explanation,omitempty"`
}

// Response is one graded submission. Responses are append-only.
type Response struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"user_id"`
	QuestionID int64        `json:"question_id"`
	Data       ResponseData `json:"data"`
	IsCorrect  bool         `json:"is_correct"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ResponseView joins a response with the question and concept it belongs to.
type ResponseView struct {
	Response    Response
	LegacyID    string
	ProblemText string
	Difficulty  Difficulty
	ConceptName string
	SubjectName string
}

// SolvedConcept is one correct response in a subject with its concept name.
type SolvedConcept struct {
	QuestionID  int64
	ConceptName string
	SolvedAt    time.Time
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	AdminAPIKey   string // Shared key accepted in X-API-Key for question creation
}

// SubjectImport is the seed file format: one subject with its concepts and questions.
type SubjectImport struct {
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Concepts []ConceptImport `json:"concepts"`
}

// ConceptImport is a concept inside a seed file.
type ConceptImport struct {
	Name                      string           `json:"name"`
	Slug                      string           `json:"slug"`
	Formula                   string           `json:"formula"`
	Explanation               string           `json:"explanation"`
	CoreIdea                  string           `json:"core_idea"`
	RealWorldApplication      string           `json:"real_world_application"`
	MathematicalDemonstration string           `json:"mathematical_demonstration"`
	StudyPlan                 string           `json:"study_plan"`
	Questions                 []QuestionImport `json:"questions"`
}

// QuestionImport is a question inside a seed file or a create-question request.
type QuestionImport struct {
	LegacyID    string          `json:"legacy_id"`
	ProblemText string          `json:"problem_text"`
	Difficulty  Difficulty      `json:"difficulty"`
	Explanation string          `json:"explanation"`
	Data        json.RawMessage `json:"data"`
}
