package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/mathyou/internal/content"
	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
)

func (h *Handler) handleQuestionSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := content.CreateQuestionDoc()
	if err != nil {
		slog.Error("load question schema", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type createQuestionRequest struct {
	SubjectSlug string           `json:"subject_slug"`
	ConceptSlug string           `json:"concept_slug"`
	ProblemText string           `json:"problem_text"`
	Difficulty  model.Difficulty `json:"difficulty"`
	Explanation string           `json:"explanation"`
	Data        json.RawMessage  `json:"data"`
	LegacyID    string           `json:"legacy_id"`
}

// newLegacyID builds the default id for a created question: the concept
// slug and eight hex characters of a random UUID.
func newLegacyID(conceptSlug string) string {
	return fmt.Sprintf("%s_%s", conceptSlug, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if err := content.ValidateCreateRequest(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createQuestionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	concept, err := h.store.GetConcept(req.SubjectSlug, req.ConceptSlug)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Concept not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	legacyID := req.LegacyID
	if legacyID == "" {
		legacyID = newLegacyID(concept.Slug)
	}
	if err := content.CheckLegacyID(legacyID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exists, err := h.store.LegacyIDExists(legacyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "Question ID already exists")
		return
	}

	var data model.QuestionData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid data: "+err.Error())
		return
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = model.DifficultyMedium
	}

	if _, err := h.store.InsertQuestion(model.Question{
		LegacyID:    legacyID,
		ConceptID:   concept.ID,
		ProblemText: req.ProblemText,
		Difficulty:  difficulty,
		Explanation: req.Explanation,
		Data:        data,
	}); err != nil {
		slog.Error("failed to insert question", "legacy_id", legacyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to insert question")
		return
	}

	slog.Info("created question", "legacy_id", legacyID, "concept", concept.Slug)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Question created", "id": legacyID})
}

// handleImportContent imports an uploaded subject file. Files already
// imported with the same content are skipped; reset=true replaces the subject.
func (h *Handler) handleImportContent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("content_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	res, err := content.Import(h.store, "upload/"+header.Filename, data, r.FormValue("reset") == "true")
	if errors.Is(err, content.ErrInvalidContent) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to import content", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to import content")
		return
	}

	slog.Info("uploaded content via admin", "filename", header.Filename, "status", res.Status)
	writeJSON(w, http.StatusOK, res)
}
