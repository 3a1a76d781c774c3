package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pavelanni/mathyou/internal/model"
)

const (
	authSessionTTL   = 24 * time.Hour
	passwordResetTTL = 30 * time.Minute
)

// CreateAuthSession creates a new auth session token for a user.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the auth session for the given token, or nil if not found/expired.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.queryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired auth sessions and reset tokens.
func (s *Store) CleanupExpiredSessions() error {
	now := time.Now()
	if _, err := s.exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, now); err != nil {
		return err
	}
	_, err := s.exec(`DELETE FROM password_resets WHERE expires_at < ?`, now)
	return err
}

// CreatePasswordReset issues a reset token for a user.
func (s *Store) CreatePasswordReset(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.exec(
		`INSERT INTO password_resets (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(passwordResetTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// ConsumePasswordReset returns the user ID for a valid token and deletes it.
// It returns 0 if the token is unknown or expired.
func (s *Store) ConsumePasswordReset(token string) (int64, error) {
	var pr model.PasswordReset
	err := s.queryRow(
		`SELECT token, user_id, created_at, expires_at FROM password_resets WHERE token = ?`, token,
	).Scan(&pr.Token, &pr.UserID, &pr.CreatedAt, &pr.ExpiresAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := s.exec(`DELETE FROM password_resets WHERE token = ?`, token); err != nil {
		return 0, err
	}
	if time.Now().After(pr.ExpiresAt) {
		return 0, nil
	}
	return pr.UserID, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
