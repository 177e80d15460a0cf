package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

type createSubjectRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type createTopicRequest struct {
	SubjectID string `json:"subject_id" validate:"required,uuid"`
	Name      string `json:"name" validate:"required,max=200"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(w, r, "subjectID")
	if !ok {
		return
	}
	if !h.subjectExists(w, r, subjectID) {
		return
	}
	topics, err := h.store.ListTopics(r.Context(), subjectID)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if topics == nil {
		topics = []model.Topic{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func (h *Handler) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req createSubjectRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !h.validateBody(w, r, &req) {
		return
	}
	id, err := h.store.CreateSubject(r.Context(), req.Name)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !h.validateBody(w, r, &req) {
		return
	}
	if !h.subjectExists(w, r, req.SubjectID) {
		return
	}
	id, err := h.store.CreateTopic(r.Context(), req.SubjectID, req.Name)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// subjectExists writes a 404 when the subject is unknown.
func (h *Handler) subjectExists(w http.ResponseWriter, r *http.Request, id string) bool {
	_, err := h.store.GetSubject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", nil)
		return false
	}
	if err != nil {
		writeServerError(w, r, err)
		return false
	}
	return true
}

// handleListQuestions lists the bank for review, filtered by subject_id and topic_id.
func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	questions, err := h.store.ListQuestions(r.Context(), q.Get("subject_id"), q.Get("topic_id"))
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "questionID")
	if !ok {
		return
	}
	question, err := h.store.GetQuestion(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", nil)
		return
	}
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}
