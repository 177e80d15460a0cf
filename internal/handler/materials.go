package handler

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/pavelanni/exampractice/internal/handler/views"
	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

type createMaterialRequest struct {
	Title       string `json:"title" validate:"required,max=300"`
	Description string `json:"description" validate:"max=5000"`
	Type        string `json:"type" validate:"required,oneof=lecture textbook image model3d link"`
	URL         string `json:"url" validate:"required,uri"`
	SubjectID   string `json:"subject_id" validate:"omitempty,uuid"`
	TopicID     string `json:"topic_id" validate:"omitempty,uuid"`
}

type materialResponse struct {
	model.Material
	Kind string `json:"kind"`
}

// viewerKind picks how a material is displayed: model3d, image, pdf or link.
// The declared type wins for 3D models and images; otherwise the URL
// extension decides.
func viewerKind(m model.Material) string {
	switch m.Type {
	case model.MaterialModel3D:
		return "model3d"
	case model.MaterialImage:
		return "image"
	}
	u := strings.ToLower(m.URL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch path.Ext(u) {
	case ".glb", ".gltf":
		return "model3d"
	case ".png", ".jpg", ".jpeg", ".webp":
		return "image"
	case ".pdf":
		return "pdf"
	}
	return "link"
}

func materialFilter(r *http.Request) model.MaterialFilter {
	q := r.URL.Query()
	return model.MaterialFilter{
		SubjectID: strings.TrimSpace(q.Get("subject_id")),
		TopicID:   strings.TrimSpace(q.Get("topic_id")),
		Query:     q.Get("q"),
	}
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.store.ListMaterials(r.Context(), materialFilter(r))
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	out := make([]materialResponse, len(materials))
	for i, m := range materials {
		out[i] = materialResponse{Material: m, Kind: viewerKind(m)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	m, ok := h.materialParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, materialResponse{Material: m, Kind: viewerKind(m)})
}

func (h *Handler) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.URL = strings.TrimSpace(req.URL)
	if !h.validateBody(w, r, &req) {
		return
	}
	if req.SubjectID != "" && !h.subjectExists(w, r, req.SubjectID) {
		return
	}

	id, err := h.store.CreateMaterial(r.Context(), model.Material{
		Title:       req.Title,
		Description: optionalString(req.Description),
		Type:        model.MaterialType(req.Type),
		URL:         req.URL,
		SubjectID:   optionalString(req.SubjectID),
		TopicID:     optionalString(req.TopicID),
	})
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) handleMaterialsPage(w http.ResponseWriter, r *http.Request) {
	filter := materialFilter(r)
	materials, err := h.store.ListMaterials(r.Context(), filter)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	renderPage(w, r, http.StatusOK, views.MaterialsPage(materials, subjects, filter))
}

func (h *Handler) handleMaterialPage(w http.ResponseWriter, r *http.Request) {
	m, ok := h.materialParam(w, r)
	if !ok {
		return
	}
	renderPage(w, r, http.StatusOK, views.MaterialPage(m, viewerKind(m)))
}

func (h *Handler) materialParam(w http.ResponseWriter, r *http.Request) (model.Material, bool) {
	id, ok := uuidParam(w, r, "materialID")
	if !ok {
		return model.Material{}, false
	}
	m, err := h.store.GetMaterial(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", nil)
		return m, false
	}
	if err != nil {
		writeServerError(w, r, err)
		return m, false
	}
	return m, true
}
