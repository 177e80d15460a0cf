package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pavelanni/exampractice/internal/exam"
	appI18n "github.com/pavelanni/exampractice/internal/i18n"
	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Tutor answers a tutoring conversation. *llm.Client implements it.
type Tutor interface {
	Tutor(ctx context.Context, turns []model.ChatTurn, subject string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	exams    *exam.Service
	tutor    Tutor
	config   model.AppConfig
	validate *validator.Validate
}

// New creates a new Handler.
func New(s *store.Store, exams *exam.Service, tutor Tutor, cfg model.AppConfig) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{store: s, exams: exams, tutor: tutor, config: cfg, validate: v}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
	})
	r.Get("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requirePageAuth)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, h.path("/materials"), http.StatusSeeOther)
		})
		r.Get("/results/{examID}", h.handleResultPage)
		r.Get("/materials", h.handleMaterialsPage)
		r.Get("/materials/{materialID}", h.handleMaterialPage)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.handleAPILogin)
		r.Post("/auth/register", h.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/auth/logout", h.handleAPILogout)
			r.Get("/auth/me", h.handleMe)

			r.Get("/subjects", h.handleListSubjects)
			r.Get("/subjects/{subjectID}/topics", h.handleListTopics)

			r.Get("/exams", h.handleListExams)
			r.Post("/exams/create", h.handleCreateExam)
			r.Get("/exams/{examID}", h.handleGetExam)
			r.Put("/exams/{examID}/answers", h.handleSaveAnswers)
			r.Post("/exams/{examID}/submit", h.handleSubmitExam)
			r.Get("/exams/{examID}/result", h.handleExamResult)

			r.Get("/materials", h.handleListMaterials)
			r.Get("/materials/{materialID}", h.handleGetMaterial)

			r.Post("/ai", h.handleAI)

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
					r.Post("/subjects", h.handleCreateSubject)
					r.Post("/topics", h.handleCreateTopic)
					r.Get("/questions", h.handleListQuestions)
					r.Get("/questions/{questionID}", h.handleGetQuestion)
					r.Post("/questions/import", h.handleImportQuestions)
					r.Get("/imports", h.handleListImports)
					r.Post("/materials", h.handleCreateMaterial)
				})
				r.Group(func(r chi.Router) {
					r.Use(requireRole(model.UserRoleAdmin))
					r.Get("/users", h.handleListUsers)
					r.Post("/users", h.handleCreateUser)
					r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				})
			})
		})
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes {"error": msg} with msg translated from msgID.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any) {
	writeJSON(w, status, map[string]string{"error": appI18n.Td(r.Context(), msgID, data)})
}

// writeServerError logs err and reports its message with a 500.
func writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// decodeJSON decodes a bounded JSON body into dst. An empty body is an
// error unless allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		slog.Debug("malformed request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrInvalidBody", nil)
		return false
	}
	return true
}

// validateBody runs struct validation and writes a 400 naming the bad fields.
func (h *Handler) validateBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	writeValidationError(w, r, err)
	return false
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidBody", nil)
		return
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fe.Field()
	}
	writeError(w, r, http.StatusBadRequest, "ErrMissingFields", map[string]any{"Fields": strings.Join(fields, ", ")})
}

// uuidParam returns the URL parameter name if it is a valid UUID, writing a 400 otherwise.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidID", nil)
		return "", false
	}
	return id.String(), true
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
