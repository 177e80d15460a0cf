package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/exampractice/internal/importer"
	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

// maxUpload bounds CSV uploads.
const maxUpload = 10 << 20

type createUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role" validate:"required,oneof=student teacher admin"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req, false) || !h.validateBody(w, r, &req) {
		return
	}
	existing, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "ErrUsernameTaken", nil)
		return
	}
	user, err := h.createUser(r, req.Username, req.DisplayName, req.Password, model.UserRole(req.Role))
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidID", nil)
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "ErrNotFound", nil)
			return
		}
		writeServerError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	slog.Info("toggled user active", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}

// handleImportQuestions imports a multipart CSV upload (fields file,
// subject_id and optional topic_id) into the question bank.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidBody", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrMissingFields", map[string]any{"Fields": "file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeServerError(w, r, err)
		return
	}

	subjectID := strings.TrimSpace(r.FormValue("subject_id"))
	if _, err := uuid.Parse(subjectID); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrMissingFields", map[string]any{"Fields": "subject_id"})
		return
	}
	if !h.subjectExists(w, r, subjectID) {
		return
	}
	topicID := strings.TrimSpace(r.FormValue("topic_id"))
	if topicID != "" && !h.topicInSubject(w, r, topicID, subjectID) {
		return
	}

	user := model.UserFromContext(r.Context())
	res, err := importer.Import(r.Context(), h.store, importer.Request{
		Data:      data,
		Filename:  header.Filename,
		SubjectID: subjectID,
		TopicID:   topicID,
		Role:      user.Role,
	})
	if err != nil {
		writeImportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeImportError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		parseErr   *importer.ParseError
		missingErr *importer.MissingColumnsError
		validErr   *importer.ValidationError
	)
	switch {
	case errors.Is(err, importer.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "ErrForbidden", nil)
	case errors.As(err, &parseErr), errors.As(err, &missingErr), errors.As(err, &validErr),
		errors.Is(err, importer.ErrEmpty), errors.Is(err, importer.ErrNoSubject):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeServerError(w, r, err)
	}
}

// topicInSubject writes a 400 unless the topic exists under the subject.
func (h *Handler) topicInSubject(w http.ResponseWriter, r *http.Request, topicID, subjectID string) bool {
	if _, err := uuid.Parse(topicID); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidID", nil)
		return false
	}
	t, err := h.store.GetTopic(r.Context(), topicID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && t.SubjectID != subjectID) {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidID", nil)
		return false
	}
	if err != nil {
		writeServerError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	imports, err := h.store.ListImports(r.Context())
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if imports == nil {
		imports = []model.QuestionImport{}
	}
	writeJSON(w, http.StatusOK, imports)
}
