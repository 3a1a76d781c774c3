package model

import "time"

// ProgressExport is the top-level JSON structure for learner progress export.
type ProgressExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Learners   []LearnerResult `json:"learners"`
}

// LearnerResult holds one learner's answer history for export.
type LearnerResult struct {
	Email     string         `json:"email"`
	Answered  int            `json:"answered"`
	Correct   int            `json:"correct"`
	Responses []AnswerResult `json:"responses"`
}

// AnswerResult holds per-response data for export.
type AnswerResult struct {
	Subject       string     `json:"subject"`
	Concept       string     `json:"concept"`
	QuestionID    string     `json:"question_id"`
	Difficulty    Difficulty `json:"difficulty"`
	Answer        string     `json:"answer"`
	Correct       bool       `json:"correct"`
	AIExplanation string     `json:"ai_explanation,omitempty"`
	At            time.Time  `json:"at"`
}
