package handler

import (
	"errors"
	"net/http"

	"github.com/pavelanni/exampractice/internal/llm"
	"github.com/pavelanni/exampractice/internal/model"
)

type aiMessage struct {
	Role string `json:"role" validate:"required,oneof=user assistant"`
	Text string `json:"text"`
}

type aiRequest struct {
	Messages []aiMessage `json:"messages" validate:"required,min=1,dive"`
	Subject  string      `json:"subject" validate:"max=200"`
}

type aiResponse struct {
	Text string `json:"text"`
}

// handleAI forwards a tutoring conversation to the language model and
// returns its reply verbatim.
func (h *Handler) handleAI(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if !decodeJSON(w, r, &req, false) || !h.validateBody(w, r, &req) {
		return
	}
	if h.tutor == nil {
		writeError(w, r, http.StatusInternalServerError, "ErrAINotConfigured", nil)
		return
	}

	turns := make([]model.ChatTurn, len(req.Messages))
	for i, m := range req.Messages {
		turns[i] = model.ChatTurn{Role: model.ChatRole(m.Role), Text: m.Text}
	}

	text, err := h.tutor.Tutor(r.Context(), turns, req.Subject)
	switch {
	case errors.Is(err, llm.ErrNoUserTurn):
		writeError(w, r, http.StatusBadRequest, "ErrNoUserMessage", nil)
	case errors.Is(err, llm.ErrNotConfigured):
		writeError(w, r, http.StatusInternalServerError, "ErrAINotConfigured", nil)
	case err != nil:
		writeServerError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, aiResponse{Text: text})
	}
}
