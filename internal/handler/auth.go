package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/mathyou/internal/handler/views"
	appI18n "github.com/pavelanni/mathyou/internal/i18n"
	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	apiKeyHeader      = "X-API-Key"
	minPasswordLen    = 8
	maxPasswordLen    = 72 // bcrypt input limit
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// csrfMiddleware issues a token cookie on safe requests and checks it on
// form posts. JSON bodies are exempt: a cross-site form cannot send them.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if isJSON(r) {
				next.ServeHTTP(w, r)
				return
			}
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.setCSRFCookie(w, token)
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loadUser attaches the session's user to the context when the cookie is
// valid. Anonymous requests pass through unchanged.
func (h *Handler) loadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		authSess, err := h.store.GetAuthSession(cookie.Value)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if authSess == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil || user == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth redirects anonymous page requests to the login form.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if model.UserFromContext(r.Context()) == nil {
			h.redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAPIAuth answers anonymous API requests with 401.
func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if model.UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin accepts a logged-in session or the configured admin API key.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if model.UserFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(apiKeyHeader)
		if h.config.AdminAPIKey != "" && key != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(h.config.AdminAPIKey)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) startSession(w http.ResponseWriter, userID int64) error {
	token, err := h.store.CreateAuthSession(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	return nil
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if model.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	var msg string
	if r.URL.Query().Has("reset") {
		msg = appI18n.T(r.Context(), "ResetDone")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.LoginPage("", msg).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin accepts a form post or a JSON body. JSON callers get
// {"success": bool} instead of a redirect.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	jsonReq := isJSON(r)
	if jsonReq && model.UserFromContext(r.Context()) != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	var creds credentials
	if jsonReq {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid JSON"})
			return
		}
	} else {
		creds.Email = r.FormValue("email")
		creds.Password = r.FormValue("password")
	}

	user, err := h.store.GetUserByEmail(creds.Email)
	if err != nil {
		slog.Error("failed to get user", "error", err)
	}
	if err != nil || user == nil ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		if jsonReq {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
			return
		}
		h.renderLoginError(w, r)
		return
	}

	if err := h.startSession(w, user.ID); err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("user logged in", "user_id", user.ID)

	if jsonReq {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	if err := views.LoginPage(appI18n.T(r.Context(), "LoginError"), "").Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if model.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	h.renderRegister(w, r, http.StatusOK, "")
}

func (h *Handler) renderRegister(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	var msg string
	if msgID != "" {
		msg = appI18n.T(r.Context(), msgID)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.RegisterPage(msg).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// passwordProblem returns the message id describing why a new password is
// unacceptable, or "" when it is fine.
func passwordProblem(password string) string {
	switch {
	case len(password) < minPasswordLen:
		return "PasswordTooShort"
	case len(password) > maxPasswordLen:
		return "PasswordTooLong"
	}
	return ""
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\n")
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if !validEmail(email) {
		h.renderRegister(w, r, http.StatusBadRequest, "InvalidEmail")
		return
	}
	if msgID := passwordProblem(password); msgID != "" {
		h.renderRegister(w, r, http.StatusBadRequest, msgID)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := h.store.CreateUser(model.User{Email: email, PasswordHash: string(hash)})
	if errors.Is(err, store.ErrEmailTaken) {
		h.renderRegister(w, r, http.StatusConflict, "EmailTaken")
		return
	}
	if err != nil {
		slog.Error("failed to create user", "error", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	slog.Info("registered user", "user_id", id)

	if err := h.startSession(w, id); err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	current := r.FormValue("current_password")
	next := r.FormValue("new_password")

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		h.renderProfile(w, r, http.StatusBadRequest, "", appI18n.T(r.Context(), "CurrentPasswordWrong"))
		return
	}
	if msgID := passwordProblem(next); msgID != "" {
		h.renderProfile(w, r, http.StatusBadRequest, "", appI18n.T(r.Context(), msgID))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.store.UpdatePassword(user.ID, string(hash)); err != nil {
		slog.Error("failed to update password", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.renderProfile(w, r, http.StatusOK, appI18n.T(r.Context(), "PasswordChanged"), "")
}

func (h *Handler) handleResetRequestPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResetRequestPage("").Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// handleResetRequest issues a reset token and logs the link. The response
// is the same whether or not the email is registered.
func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	user, err := h.store.GetUserByEmail(email)
	if err != nil {
		slog.Error("failed to get user", "error", err)
	}
	if user != nil {
		token, err := h.store.CreatePasswordReset(user.ID)
		if err != nil {
			slog.Error("failed to create password reset", "user_id", user.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		scheme := "http"
		if r.TLS != nil || h.config.SecureCookies {
			scheme = "https"
		}
		slog.Info("password reset link", "email", user.Email,
			"url", scheme+"://"+r.Host+h.path("/reset-password/"+token))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResetRequestPage(appI18n.T(r.Context(), "ResetRequested")).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResetPasswordPage(chi.URLParam(r, "token"), "").Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	password := r.FormValue("password")

	renderErr := func(msgID string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		if err := views.ResetPasswordPage(token, appI18n.T(r.Context(), msgID)).Render(r.Context(), w); err != nil {
			slog.Error("render error", "error", err)
		}
	}

	if msgID := passwordProblem(password); msgID != "" {
		renderErr(msgID)
		return
	}
	// Hash before consuming so a failure leaves the token usable.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	uid, err := h.store.ConsumePasswordReset(token)
	if err != nil {
		slog.Error("failed to consume password reset", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if uid == 0 {
		renderErr("ResetInvalid")
		return
	}

	if err := h.store.UpdatePassword(uid, string(hash)); err != nil {
		slog.Error("failed to update password", "user_id", uid, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("password reset", "user_id", uid)
	http.Redirect(w, r, h.path("/login?reset=1"), http.StatusSeeOther)
}
