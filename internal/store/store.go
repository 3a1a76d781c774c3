package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a subject, concept or question lookup has no match.
var ErrNotFound = errors.New("not found")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Store is the relational content store.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// New opens the database named by dsn and applies the schema.
// postgres:// and postgresql:// URLs use pgx; anything else is a SQLite path.
func New(dsn string) (*Store, error) {
	s := &Store{}
	var err error
	if isPostgresDSN(dsn) {
		s.dialect = dialectPostgres
		s.db, err = sql.Open("pgx", dsn)
	} else {
		s.dialect = dialectSQLite
		s.db, err = sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if s.dialect == dialectSQLite {
		// A single connection keeps :memory: databases shared and avoids writer contention.
		s.db.SetMaxOpenConns(1)
	}
	if err := s.db.Ping(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := s.migrate(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

func (s *Store) exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *Store) query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *Store) queryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id statement.
func (s *Store) insert(query string, args ...any) (int64, error) {
	var id int64
	err := s.queryRow(query+" RETURNING id", args...).Scan(&id)
	return id, err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *Store) migrate() error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "DATETIME"
	if s.dialect == dialectPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
	}
	fk := "BIGINT"
	if s.dialect == dialectSQLite {
		fk = "INTEGER"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subjects (
			id ` + pk + `,
			name TEXT NOT NULL UNIQUE,
			slug TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS concepts (
			id ` + pk + `,
			subject_id ` + fk + ` NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			formula TEXT NOT NULL DEFAULT '',
			explanation TEXT NOT NULL DEFAULT '',
			core_idea TEXT NOT NULL DEFAULT '',
			real_world_application TEXT NOT NULL DEFAULT '',
			mathematical_demonstration TEXT NOT NULL DEFAULT '',
			study_plan TEXT NOT NULL DEFAULT '',
			UNIQUE (subject_id, slug)
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id ` + pk + `,
			legacy_id TEXT NOT NULL UNIQUE,
			concept_id ` + fk + ` NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
			problem_text TEXT NOT NULL,
			difficulty TEXT NOT NULL DEFAULT '',
			explanation TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_concept ON questions(concept_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id ` + pk + `,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_responses (
			id ` + pk + `,
			user_id ` + fk + ` NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			question_id ` + fk + ` NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			response_data TEXT NOT NULL,
			is_correct BOOLEAN NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_user ON user_responses(user_id, is_correct)`,
		`CREATE TABLE IF NOT EXISTS auth_sessions (
			id TEXT PRIMARY KEY,
			user_id ` + fk + ` NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at ` + ts + ` NOT NULL,
			expires_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS password_resets (
			token TEXT PRIMARY KEY,
			user_id ` + fk + ` NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at ` + ts + ` NOT NULL,
			expires_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
