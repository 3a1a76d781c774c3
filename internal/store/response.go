package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/mathyou/internal/model"
)

// InsertResponse records a graded submission. The correctness flag is
// written once here and never updated afterwards.
func (s *Store) InsertResponse(r model.Response) (int64, error) {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return 0, fmt.Errorf("encode response data: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return s.insert(
		`INSERT INTO user_responses (user_id, question_id, response_data, is_correct, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.UserID, r.QuestionID, string(data), r.IsCorrect, r.CreatedAt,
	)
}

// AttachExplanation stores generated feedback on an existing response.
func (s *Store) AttachExplanation(responseID int64, explanation string) error {
	var raw string
	if err := s.queryRow(`SELECT response_data FROM user_responses WHERE id = ?`, responseID).Scan(&raw); err != nil {
		return fmt.Errorf("load response %d: %w", responseID, err)
	}
	var data model.ResponseData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("decode response %d: %w", responseID, err)
	}
	data.AIExplanation = explanation
	updated, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.exec(`UPDATE user_responses SET response_data = ? WHERE id = ?`, string(updated), responseID)
	return err
}

// GetResponse returns a response by ID.
func (s *Store) GetResponse(id int64) (model.Response, error) {
	var r model.Response
	var raw string
	err := s.queryRow(
		`SELECT id, user_id, question_id, response_data, is_correct, created_at FROM user_responses WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &r.QuestionID, &raw, &r.IsCorrect, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	err = json.Unmarshal([]byte(raw), &r.Data)
	return r, err
}

// CorrectQuestionIDs returns which of questionIDs the user has answered correctly at least once.
func (s *Store) CorrectQuestionIDs(userID int64, questionIDs []int64) ([]int64, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(questionIDs)+2)
	args = append(args, userID, true)
	for _, id := range questionIDs {
		args = append(args, id)
	}
	rows, err := s.query(
		`SELECT DISTINCT question_id FROM user_responses
		 WHERE user_id = ? AND is_correct = ? AND question_id IN (`+placeholders(len(questionIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSolvedInSubject returns the user's correct responses in a subject, newest first.
func (s *Store) ListSolvedInSubject(userID, subjectID int64) ([]model.SolvedConcept, error) {
	rows, err := s.query(
		`SELECT r.question_id, c.name, r.created_at
		 FROM user_responses r
		 JOIN questions q ON q.id = r.question_id
		 JOIN concepts c ON c.id = q.concept_id
		 WHERE r.user_id = ? AND r.is_correct = ? AND c.subject_id = ?
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID, true, subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var solved []model.SolvedConcept
	for rows.Next() {
		var sc model.SolvedConcept
		if err := rows.Scan(&sc.QuestionID, &sc.ConceptName, &sc.SolvedAt); err != nil {
			return nil, err
		}
		solved = append(solved, sc)
	}
	return solved, rows.Err()
}

// ListResponsesByUser returns the user's answer history, newest first.
func (s *Store) ListResponsesByUser(userID int64) ([]model.ResponseView, error) {
	rows, err := s.query(
		`SELECT r.id, r.user_id, r.question_id, r.response_data, r.is_correct, r.created_at,
			q.legacy_id, q.problem_text, q.difficulty, c.name, s.name
		 FROM user_responses r
		 JOIN questions q ON q.id = r.question_id
		 JOIN concepts c ON c.id = q.concept_id
		 JOIN subjects s ON s.id = c.subject_id
		 WHERE r.user_id = ?
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []model.ResponseView
	for rows.Next() {
		var v model.ResponseView
		var raw string
		if err := rows.Scan(&v.Response.ID, &v.Response.UserID, &v.Response.QuestionID, &raw,
			&v.Response.IsCorrect, &v.Response.CreatedAt,
			&v.LegacyID, &v.ProblemText, &v.Difficulty, &v.ConceptName, &v.SubjectName); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &v.Response.Data); err != nil {
			return nil, fmt.Errorf("decode response %d: %w", v.Response.ID, err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
