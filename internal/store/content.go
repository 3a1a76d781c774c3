package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/mathyou/internal/model"
)

// CreateSubject stores a subject.
func (s *Store) CreateSubject(sub model.Subject) (int64, error) {
	return s.insert(`INSERT INTO subjects (name, slug) VALUES (?, ?)`, sub.Name, sub.Slug)
}

// GetSubjectBySlug returns a subject by its slug.
func (s *Store) GetSubjectBySlug(slug string) (model.Subject, error) {
	var sub model.Subject
	err := s.queryRow(`SELECT id, name, slug FROM subjects WHERE slug = ?`, slug).
		Scan(&sub.ID, &sub.Name, &sub.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("subject %q: %w", slug, ErrNotFound)
	}
	return sub, err
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects() ([]model.Subject, error) {
	rows, err := s.query(`SELECT id, name, slug FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Slug); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// DeleteSubject removes a subject; its concepts, questions and their responses cascade.
func (s *Store) DeleteSubject(slug string) error {
	res, err := s.exec(`DELETE FROM subjects WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subject %q: %w", slug, ErrNotFound)
	}
	return nil
}

const conceptColumns = `c.id, c.subject_id, c.name, c.slug, c.formula, c.explanation, c.core_idea,
	c.real_world_application, c.mathematical_demonstration, c.study_plan`

func scanConcept(sc interface{ Scan(...any) error }) (model.Concept, error) {
	var c model.Concept
	err := sc.Scan(&c.ID, &c.SubjectID, &c.Name, &c.Slug, &c.Formula, &c.Explanation, &c.CoreIdea,
		&c.RealWorldApplication, &c.MathematicalDemonstration, &c.StudyPlan)
	return c, err
}

// CreateConcept stores a concept under its subject.
func (s *Store) CreateConcept(c model.Concept) (int64, error) {
	return s.insert(
		`INSERT INTO concepts (subject_id, name, slug, formula, explanation, core_idea,
			real_world_application, mathematical_demonstration, study_plan)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SubjectID, c.Name, c.Slug, c.Formula, c.Explanation, c.CoreIdea,
		c.RealWorldApplication, c.MathematicalDemonstration, c.StudyPlan,
	)
}

// GetConcept returns the concept with the given slug inside a subject.
func (s *Store) GetConcept(subjectSlug, conceptSlug string) (model.Concept, error) {
	c, err := scanConcept(s.queryRow(
		`SELECT `+conceptColumns+` FROM concepts c JOIN subjects s ON s.id = c.subject_id
		 WHERE s.slug = ? AND c.slug = ?`, subjectSlug, conceptSlug))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("concept %q in %q: %w", conceptSlug, subjectSlug, ErrNotFound)
	}
	return c, err
}

// FindConceptBySlug returns the first concept with the slug in any subject.
func (s *Store) FindConceptBySlug(slug string) (model.Concept, error) {
	c, err := scanConcept(s.queryRow(
		`SELECT `+conceptColumns+` FROM concepts c WHERE c.slug = ? ORDER BY c.id LIMIT 1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("concept %q: %w", slug, ErrNotFound)
	}
	return c, err
}

// ListConcepts returns the concepts of a subject in insertion order.
func (s *Store) ListConcepts(subjectID int64) ([]model.Concept, error) {
	rows, err := s.query(`SELECT `+conceptColumns+` FROM concepts c WHERE c.subject_id = ? ORDER BY c.id`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var concepts []model.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

const questionColumns = `q.id, q.concept_id, q.legacy_id, q.problem_text, q.difficulty, q.explanation, q.data`

func scanQuestion(sc interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var data string
	if err := sc.Scan(&q.ID, &q.ConceptID, &q.LegacyID, &q.ProblemText, &q.Difficulty, &q.Explanation, &data); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(data), &q.Data); err != nil {
		return q, fmt.Errorf("decode data of question %s: %w", q.LegacyID, err)
	}
	return q, nil
}

func (s *Store) listQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	data, err := json.Marshal(q.Data)
	if err != nil {
		return 0, fmt.Errorf("encode question data: %w", err)
	}
	return s.insert(
		`INSERT INTO questions (legacy_id, concept_id, problem_text, difficulty, explanation, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.LegacyID, q.ConceptID, q.ProblemText, q.Difficulty, q.Explanation, string(data),
	)
}

// UpdateQuestionData replaces the payload of a question. Existing responses keep their grading.
func (s *Store) UpdateQuestionData(legacyID string, data model.QuestionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode question data: %w", err)
	}
	res, err := s.exec(`UPDATE questions SET data = ? WHERE legacy_id = ?`, string(raw), legacyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %q: %w", legacyID, ErrNotFound)
	}
	return nil
}

// GetQuestionByLegacyID returns a question by its external id.
func (s *Store) GetQuestionByLegacyID(legacyID string) (model.Question, error) {
	q, err := scanQuestion(s.queryRow(`SELECT `+questionColumns+` FROM questions q WHERE q.legacy_id = ?`, legacyID))
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("question %q: %w", legacyID, ErrNotFound)
	}
	return q, err
}

// LegacyIDExists reports whether a question already uses the id.
func (s *Store) LegacyIDExists(legacyID string) (bool, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM questions WHERE legacy_id = ?`, legacyID).Scan(&count)
	return count > 0, err
}

// ListQuestionsByConcept returns the questions of a concept in insertion order.
func (s *Store) ListQuestionsByConcept(conceptID int64) ([]model.Question, error) {
	return s.listQuestions(`SELECT `+questionColumns+` FROM questions q WHERE q.concept_id = ? ORDER BY q.id`, conceptID)
}

// ListSiblingQuestions returns the questions sharing concept and difficulty with q, excluding q.
func (s *Store) ListSiblingQuestions(q model.Question) ([]model.Question, error) {
	return s.listQuestions(
		`SELECT `+questionColumns+` FROM questions q
		 WHERE q.concept_id = ? AND q.difficulty = ? AND q.id <> ? ORDER BY q.id`,
		q.ConceptID, q.Difficulty, q.ID,
	)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
