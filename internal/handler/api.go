package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
	"github.com/pavelanni/mathyou/internal/tutor"
)

const maxBodyBytes = 1 << 20

// questionPayload is the client-facing shape of a question. Mastery
// problems use the same field names.
type questionPayload struct {
	ID          string             `json:"id"`
	Problem     string             `json:"problem"`
	Difficulty  model.Difficulty   `json:"difficulty"`
	Explanation string             `json:"explanation"`
	Type        model.QuestionType `json:"type"`
	Choices     []string           `json:"choices,omitempty"`
	Answer      model.AnswerValue  `json:"answer"`
}

func newQuestionPayload(q model.Question) questionPayload {
	return questionPayload{
		ID:          q.LegacyID,
		Problem:     q.ProblemText,
		Difficulty:  q.Difficulty,
		Explanation: q.Explanation,
		Type:        q.Data.Type,
		Choices:     q.Data.Choices,
		Answer:      q.Data.Answer,
	}
}

// subjectParam resolves the ?discipline= query parameter, writing the
// error response itself when it returns false.
func (h *Handler) subjectParam(w http.ResponseWriter, r *http.Request) (model.Subject, bool) {
	slug := r.URL.Query().Get("discipline")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "Discipline is required")
		return model.Subject{}, false
	}
	subject, err := h.store.GetSubjectBySlug(slug)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Discipline not found")
		return subject, false
	}
	if err != nil {
		slog.Error("get subject", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return subject, false
	}
	return subject, true
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}

	uid := userID(r.Context())
	var solved []model.SolvedConcept
	if uid != nil {
		var err error
		solved, err = h.store.ListSolvedInSubject(*uid, subject.ID)
		if err != nil {
			slog.Error("list solved", "subject", subject.Slug, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	stats := tutor.NewOverviewStats(uid, subject, solved)
	writeJSON(w, http.StatusOK, map[string]string{"overview": h.feedback.Overview(r.Context(), stats)})
}

func (h *Handler) handleConcept(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	concept, err := h.store.GetConcept(q.Get("discipline"), q.Get("concept"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Concept not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	questions, err := h.store.ListQuestionsByConcept(concept.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.LegacyID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":                       concept.Name,
		"formula":                    concept.Formula,
		"explanation":                concept.Explanation,
		"core_idea":                  concept.CoreIdea,
		"real_world_application":     concept.RealWorldApplication,
		"mathematical_demonstration": concept.MathematicalDemonstration,
		"study_plan":                 concept.StudyPlan,
		"questions":                  ids,
	})
}

// handleProgress maps each concept slug of a subject to the id of its
// active question or mastery token. Concepts with nothing to serve are omitted.
func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}
	sels, err := h.selections(r.Context(), subject)
	if err != nil {
		slog.Error("evaluate progress", "subject", subject.Slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make(map[string]string, len(sels))
	for _, s := range sels {
		if id := s.Selection.ID(); id != "" {
			out[s.Concept.Slug] = id
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleQuestion(w http.ResponseWriter, r *http.Request) {
	legacyID := chi.URLParam(r, "legacyID")

	if slug, ok := tutor.ParseMasteryToken(legacyID); ok {
		name := strings.ReplaceAll(slug, "-", " ")
		if c, err := h.store.FindConceptBySlug(slug); err == nil {
			name = c.Name
		}
		writeJSON(w, http.StatusOK, h.feedback.MasteryProblem(r.Context(), slug, name))
		return
	}

	slog.Debug("question requested", "legacy_id", legacyID)
	q, err := h.store.GetQuestionByLegacyID(legacyID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, newQuestionPayload(q))
}

func (h *Handler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	currentID := r.URL.Query().Get("current_id")
	if currentID == "" {
		writeError(w, http.StatusBadRequest, "current_id required")
		return
	}
	current, err := h.store.GetQuestionByLegacyID(currentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	siblings, err := h.store.ListSiblingQuestions(current)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, newQuestionPayload(tutor.SelectAnother(current, siblings, h.rng)))
}

type submitRequest struct {
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// handleSubmitAnswer grades and stores a response, then asks for generated
// feedback. The response is committed before feedback is requested; when
// no feedback comes back the question's stored explanation is returned.
func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	answerRaw := strings.TrimSpace(string(req.Answer))
	if req.QuestionID == "" || answerRaw == "" || answerRaw == "null" {
		writeError(w, http.StatusBadRequest, "Missing question_id or answer")
		return
	}
	answer := model.AnswerValue(req.Answer).String()

	q, err := h.store.GetQuestionByLegacyID(req.QuestionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	correct := tutor.Grade(q, answer)
	respID, err := h.store.InsertResponse(model.Response{
		UserID:     user.ID,
		QuestionID: q.ID,
		Data:       model.ResponseData{Answer: answer},
		IsCorrect:  correct,
	})
	if err != nil {
		slog.Error("failed to store response", "user_id", user.ID, "question", q.LegacyID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("answer graded", "user_id", user.ID, "question", q.LegacyID, "correct", correct)

	explanation, ok := h.feedback.Feedback(r.Context(), q, answer, correct)
	if ok {
		if err := h.store.AttachExplanation(respID, explanation); err != nil {
			slog.Error("failed to attach feedback", "response_id", respID, "error", err)
		}
	} else {
		explanation = q.Explanation
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"correct":     correct,
		"explanation": explanation,
	})
}
