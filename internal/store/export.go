package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/mathyou/internal/model"
)

// ExportProgress builds export-ready answer histories for all learners.
func (s *Store) ExportProgress() (model.ProgressExport, error) {
	out := model.ProgressExport{ExportedAt: time.Now().UTC()}

	users, err := s.ListUsers()
	if err != nil {
		return out, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		views, err := s.ListResponsesByUser(u.ID)
		if err != nil {
			return out, fmt.Errorf("list responses of user %d: %w", u.ID, err)
		}

		lr := model.LearnerResult{Email: u.Email, Answered: len(views)}
		for _, v := range views {
			if v.Response.IsCorrect {
				lr.Correct++
			}
			lr.Responses = append(lr.Responses, model.AnswerResult{
				Subject:       v.SubjectName,
				Concept:       v.ConceptName,
				QuestionID:    v.LegacyID,
				Difficulty:    v.Difficulty,
				Answer:        v.Response.Data.Answer,
				Correct:       v.Response.IsCorrect,
				AIExplanation: v.Response.Data.AIExplanation,
				At:            v.Response.CreatedAt,
			})
		}
		out.Learners = append(out.Learners, lr)
	}

	return out, nil
}
