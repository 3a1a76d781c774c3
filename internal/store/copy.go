package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// copyOrder lists tables parents first so foreign keys resolve on insert.
var copyOrder = []string{"subjects", "concepts", "questions", "users", "user_responses", "app_metadata"}

// CopyTo copies all content, users and responses into dst, keeping IDs.
// dst must be empty. Sessions and reset tokens are not copied.
func (s *Store) CopyTo(dst *Store) error {
	for _, table := range copyOrder {
		rows, err := s.readTable(table)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if err := dst.writeTable(table, rows); err != nil {
			return fmt.Errorf("write %s: %w", table, err)
		}
		slog.Info("copied table", "table", table, "rows", len(rows))
	}
	return dst.resetSequences()
}

// tableColumns returns the column list for a table and a function that
// allocates typed scan targets for one row.
func tableColumns(table string) (string, func() []any) {
	switch table {
	case "subjects":
		return "id, name, slug", func() []any { return []any{new(int64), new(string), new(string)} }
	case "concepts":
		return "id, subject_id, name, slug, formula, explanation, core_idea, real_world_application, mathematical_demonstration, study_plan",
			func() []any {
				return []any{new(int64), new(int64), new(string), new(string), new(string), new(string),
					new(string), new(string), new(string), new(string)}
			}
	case "questions":
		return "id, legacy_id, concept_id, problem_text, difficulty, explanation, data",
			func() []any {
				return []any{new(int64), new(string), new(int64), new(string), new(string), new(string), new(string)}
			}
	case "users":
		return "id, email, password_hash, created_at",
			func() []any { return []any{new(int64), new(string), new(string), new(time.Time)} }
	case "user_responses":
		return "id, user_id, question_id, response_data, is_correct, created_at",
			func() []any {
				return []any{new(int64), new(int64), new(int64), new(string), new(bool), new(time.Time)}
			}
	case "app_metadata":
		return "key, value", func() []any { return []any{new(string), new(string)} }
	}
	panic("unknown table " + table)
}

func (s *Store) readTable(table string) ([][]any, error) {
	cols, targets := tableColumns(table)
	rows, err := s.query(`SELECT ` + cols + ` FROM ` + table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		dest := targets()
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		vals := make([]any, len(dest))
		for i, d := range dest {
			vals[i] = deref(d)
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func deref(p any) any {
	switch v := p.(type) {
	case *int64:
		return *v
	case *string:
		return *v
	case *bool:
		return *v
	case *time.Time:
		return *v
	}
	return p
}

func (s *Store) writeTable(table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	cols, targets := tableColumns(table)
	stmt := `INSERT INTO ` + table + ` (` + cols + `) VALUES (` + placeholders(len(targets())) + `)`
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, r := range rows {
		if _, err := tx.Exec(s.rebind(stmt), r...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// resetSequences moves postgres serial sequences past the copied IDs.
func (s *Store) resetSequences() error {
	if s.dialect != dialectPostgres {
		return nil
	}
	for _, table := range copyOrder {
		if table == "app_metadata" {
			continue
		}
		q := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1)) FROM %s`, table, table)
		var v sql.NullInt64
		if err := s.db.QueryRow(q).Scan(&v); err != nil {
			return fmt.Errorf("reset sequence of %s: %w", table, err)
		}
	}
	return nil
}
