package handler

import (
	"errors"
	"net/http"

	"github.com/pavelanni/exampractice/internal/exam"
	"github.com/pavelanni/exampractice/internal/handler/views"
	"github.com/pavelanni/exampractice/internal/model"
)

type createExamResponse struct {
	ExamID string `json:"exam_id"`
}

type answersRequest struct {
	Answers map[string]string `json:"answers"`
}

// handleCreateExam samples questions and starts a new exam for the caller.
func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req exam.CreateRequest
	if !decodeJSON(w, r, &req, false) || !h.validateBody(w, r, &req) {
		return
	}
	user := model.UserFromContext(r.Context())

	id, err := h.exams.Create(r.Context(), user.ID, req)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createExamResponse{ExamID: id})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	status := model.ExamStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.StatusInProgress, model.StatusSubmitted:
	default:
		writeError(w, r, http.StatusBadRequest, "ErrMissingFields", map[string]any{"Fields": "status"})
		return
	}
	exams, err := h.store.ListExams(r.Context(), user.ID, status)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

// handleGetExam returns the exam snapshot used to start or resume a sitting.
func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.examParam(w, r, false)
	if !ok {
		return
	}
	snap, err := h.exams.Load(r.Context(), id)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.examParam(w, r, true)
	if !ok {
		return
	}
	var req answersRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := h.exams.SaveAnswers(r.Context(), id, req.Answers); err != nil {
		h.writeExamError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitExam finalizes the exam. The body is optional; answers in it
// override the saved ones.
func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.examParam(w, r, true)
	if !ok {
		return
	}
	var req answersRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	res, err := h.exams.Submit(r.Context(), id, req.Answers)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExamResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.examParam(w, r, false)
	if !ok {
		return
	}
	res, err := h.exams.Result(r.Context(), id)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleResultPage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.examParam(w, r, false)
	if !ok {
		return
	}
	res, err := h.exams.Result(r.Context(), id)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	renderPage(w, r, http.StatusOK, views.ResultPage(res))
}

// examParam parses {examID} and checks the caller may access the exam.
// Owners have full access; teachers and admins may only read.
func (h *Handler) examParam(w http.ResponseWriter, r *http.Request, write bool) (string, bool) {
	id, ok := uuidParam(w, r, "examID")
	if !ok {
		return "", false
	}
	e, err := h.exams.Get(r.Context(), id)
	if err != nil {
		h.writeExamError(w, r, err)
		return "", false
	}
	user := model.UserFromContext(r.Context())
	if e.UserID == user.ID || (!write && user.Role.CanManageContent()) {
		return id, true
	}
	writeError(w, r, http.StatusForbidden, "ErrForbidden", nil)
	return "", false
}

func (h *Handler) writeExamError(w http.ResponseWriter, r *http.Request, err error) {
	var poolErr *exam.PoolError
	switch {
	case errors.As(err, &poolErr):
		writeError(w, r, http.StatusBadRequest, "ErrInsufficientPool",
			map[string]any{"Available": poolErr.Available, "Requested": poolErr.Requested})
	case errors.Is(err, exam.ErrInvalidRequest):
		writeValidationError(w, r, err)
	case errors.Is(err, exam.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "ErrNotFound", nil)
	case errors.Is(err, exam.ErrExamClosed):
		writeError(w, r, http.StatusConflict, "ErrExamClosed", nil)
	case errors.Is(err, exam.ErrUnknownQuestion):
		writeError(w, r, http.StatusBadRequest, "ErrUnknownQuestion", nil)
	default:
		writeServerError(w, r, err)
	}
}
