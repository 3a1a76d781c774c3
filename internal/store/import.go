package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/mathyou/internal/model"
)

// ImportStats counts what ImportSubject created.
type ImportStats struct {
	Concepts  int
	Questions int
	Skipped   int
}

// ImportSubject inserts a subject with its concepts and questions in one
// transaction. Questions whose legacy id already exists are skipped.
func (s *Store) ImportSubject(imp model.SubjectImport) (ImportStats, error) {
	var stats ImportStats
	tx, err := s.db.Begin()
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	subjectID, err := s.txInsert(tx, `INSERT INTO subjects (name, slug) VALUES (?, ?)`, imp.Name, imp.Slug)
	if err != nil {
		return stats, fmt.Errorf("insert subject %s: %w", imp.Slug, err)
	}

	for _, ci := range imp.Concepts {
		conceptID, err := s.txInsert(tx,
			`INSERT INTO concepts (subject_id, name, slug, formula, explanation, core_idea,
				real_world_application, mathematical_demonstration, study_plan)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			subjectID, ci.Name, ci.Slug, ci.Formula, ci.Explanation, ci.CoreIdea,
			ci.RealWorldApplication, ci.MathematicalDemonstration, ci.StudyPlan,
		)
		if err != nil {
			return stats, fmt.Errorf("insert concept %s: %w", ci.Slug, err)
		}
		stats.Concepts++

		for _, qi := range ci.Questions {
			var exists int
			if err := tx.QueryRow(s.rebind(`SELECT COUNT(*) FROM questions WHERE legacy_id = ?`), qi.LegacyID).Scan(&exists); err != nil {
				return stats, err
			}
			if exists > 0 {
				stats.Skipped++
				continue
			}
			data := strings.TrimSpace(string(qi.Data))
			if data == "" {
				data = "{}"
			}
			if !json.Valid([]byte(data)) {
				return stats, fmt.Errorf("question %s: data is not valid JSON", qi.LegacyID)
			}
			difficulty := qi.Difficulty
			if difficulty == "" {
				difficulty = model.DifficultyMedium
			}
			if _, err := s.txInsert(tx,
				`INSERT INTO questions (legacy_id, concept_id, problem_text, difficulty, explanation, data)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				qi.LegacyID, conceptID, qi.ProblemText, difficulty, qi.Explanation, data,
			); err != nil {
				return stats, fmt.Errorf("insert question %s: %w", qi.LegacyID, err)
			}
			stats.Questions++
		}
	}

	return stats, tx.Commit()
}

func (s *Store) txInsert(tx *sql.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRow(s.rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}
