package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mathyou/internal/handler/views"
	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
	"github.com/pavelanni/mathyou/internal/tutor"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	evaluator *tutor.Evaluator
	feedback  *tutor.Generator
	config    model.ServerConfig
	rng       tutor.Intn
}

// New creates a new Handler.
func New(s *store.Store, g *tutor.Generator, cfg model.ServerConfig) (*Handler, error) {
	if s == nil || g == nil {
		return nil, errors.New("store and generator are required")
	}
	return &Handler{
		store:     s,
		evaluator: tutor.NewEvaluator(s),
		feedback:  g,
		config:    cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.loadUser)
	r.NotFound(h.handleNotFound)

	r.Handle("/static/*", http.StripPrefix(h.path("/static/"), http.FileServerFS(views.Static)))

	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
		r.Get("/overview", h.handleOverview)
		r.Get("/concept", h.handleConcept)
		r.Get("/progress", h.handleProgress)
		r.Get("/question/schema", h.handleQuestionSchema)
		r.Get("/question/next", h.handleNextQuestion)
		r.Get("/question/{legacyID}", h.handleQuestion)
		r.With(h.requireAPIAuth).Post("/question/submit_answer", h.handleSubmitAnswer)
		r.With(h.requireAdmin).Post("/question/create", h.handleCreateQuestion)
		r.With(h.requireAdmin).Post("/content/import", h.handleImportContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Get("/register", h.handleRegisterPage)
		r.Post("/register", h.handleRegister)
		r.Post("/logout", h.handleLogout)
		r.Get("/reset-password/request", h.handleResetRequestPage)
		r.Post("/reset-password/request", h.handleResetRequest)
		r.Get("/reset-password/{token}", h.handleResetPasswordPage)
		r.Post("/reset-password/{token}", h.handleResetPassword)
		r.With(h.requireAuth).Get("/profile", h.handleProfile)
		r.With(h.requireAuth).Post("/change-password", h.handleChangePassword)
		r.Get("/{subjectSlug}", h.handleDiscipline)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func userID(ctx context.Context) *int64 {
	if u := model.UserFromContext(ctx); u != nil {
		return &u.ID
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := views.NotFoundPage().Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(subjects).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// conceptSelection pairs a concept with its active item. Selection.Kind is
// SelectNone for concepts without questions.
type conceptSelection struct {
	Concept   model.Concept
	Selection tutor.Selection
}

// selections evaluates progress and picks the active item for every concept of a subject.
func (h *Handler) selections(ctx context.Context, subject model.Subject) ([]conceptSelection, error) {
	concepts, err := h.store.ListConcepts(subject.ID)
	if err != nil {
		return nil, err
	}
	uid := userID(ctx)

	out := make([]conceptSelection, 0, len(concepts))
	for _, c := range concepts {
		cs := conceptSelection{Concept: c}
		questions, err := h.store.ListQuestionsByConcept(c.ID)
		if err != nil {
			return nil, err
		}
		if len(questions) > 0 {
			tier, err := h.evaluator.NextDifficulty(ctx, uid, c, questions)
			if err != nil {
				return nil, err
			}
			cs.Selection = tutor.Select(c, questions, tier, uid != nil)
		}
		out = append(out, cs)
	}
	return out, nil
}

func (h *Handler) handleDiscipline(w http.ResponseWriter, r *http.Request) {
	subject, err := h.store.GetSubjectBySlug(chi.URLParam(r, "subjectSlug"))
	if errors.Is(err, store.ErrNotFound) {
		h.handleNotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sels, err := h.selections(r.Context(), subject)
	if err != nil {
		slog.Error("evaluate progress", "subject", subject.Slug, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	view := views.DisciplineView{Subject: subject}
	for _, s := range sels {
		view.Concepts = append(view.Concepts, views.ConceptCard{
			Concept:  s.Concept,
			ActiveID: s.Selection.ID(),
			Mastered: s.Selection.Kind == tutor.SelectMastery,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.DisciplinePage(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, http.StatusOK, "", "")
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, status int, message, errMsg string) {
	user := model.UserFromContext(r.Context())
	responses, err := h.store.ListResponsesByUser(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	view := views.ProfileView{
		Email:     user.Email,
		Responses: responses,
		Message:   message,
		Error:     errMsg,
	}
	for _, resp := range responses {
		if resp.Response.IsCorrect {
			view.Solved++
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.ProfilePage(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
