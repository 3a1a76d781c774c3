package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/mathyou/internal/model"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	email := normalizeEmail(u.Email)
	existing, err := s.GetUserByEmail(email)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrEmailTaken
	}
	id, err := s.insert(
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		email, u.PasswordHash, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "email", email, "error", err)
		return 0, err
	}
	slog.Info("created user", "id", id, "email", email)
	return id, nil
}

// GetUserByEmail returns a user by email, or nil if none exists.
func (s *Store) GetUserByEmail(email string) (*model.User, error) {
	var u model.User
	err := s.queryRow(
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns a user by ID, or nil if none exists.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	var u model.User
	err := s.queryRow(
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.query(`SELECT id, email, password_hash, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(userID int64, hash string) error {
	_, err := s.exec(`UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	return err
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
