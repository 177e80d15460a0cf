package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/exampractice/internal/handler/views"
	appI18n "github.com/pavelanni/exampractice/internal/i18n"
	"github.com/pavelanni/exampractice/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware implements the double-submit cookie check for HTML forms.
// Safe methods get a fresh token; unsafe ones must echo the cookie in the form.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			formToken := r.FormValue("csrf_token")
			if err != nil || cookie.Value == "" || formToken == "" ||
				subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF check failed", "path", r.URL.Path)
				http.Error(w, appI18n.T(r.Context(), "ErrCSRF"), http.StatusForbidden)
				return
			}
		}
		r, ok := h.setCSRFCookie(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the caller from a Bearer token or the session cookie.
func (h *Handler) authenticate(r *http.Request) *model.User {
	token := ""
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, value, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return nil
		}
		token = strings.TrimSpace(value)
	} else if cookie, err := r.Cookie(sessionCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		return nil
	}

	authSess, err := h.store.GetAuthSession(r.Context(), token)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil
	}
	if authSess == nil {
		return nil
	}
	user, err := h.store.GetUserByID(r.Context(), authSess.UserID)
	if err != nil || user == nil || !user.Active {
		return nil
	}
	return user
}

// requireAuth rejects API requests without a valid session with 401.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.authenticate(r)
		if user == nil {
			writeError(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

// requirePageAuth redirects HTML requests without a valid session to the login page.
func (h *Handler) requirePageAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.authenticate(r)
		if user == nil {
			http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, http.StatusForbidden, "ErrForbidden", nil)
		})
	}
}

// checkPassword returns the active user matching the credentials, or nil.
func (h *Handler) checkPassword(r *http.Request, username, password string) (*model.User, error) {
	user, err := h.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return user, nil
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) (model.AuthSession, error) {
	sess, err := h.store.CreateAuthSession(r.Context(), user.ID)
	if err != nil {
		return sess, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     h.cookiePath(),
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return sess, nil
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		token = cookie.Value
	}
	if scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(value)
	}
	if token != "" {
		if err := h.store.DeleteAuthSession(r.Context(), token); err != nil {
			slog.Warn("failed to delete auth session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	user, err := h.checkPassword(r, r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		slog.Error("failed to get user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		renderPage(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "InvalidCredentials")))
		return
	}
	if _, err := h.startSession(w, r, user); err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w, r)
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

type credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

func (h *Handler) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req, false) || !h.validateBody(w, r, &req) {
		return
	}
	user, err := h.checkPassword(r, req.Username, req.Password)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": appI18n.T(r.Context(), "InvalidCredentials")})
		return
	}
	sess, err := h.startSession(w, r, user)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: sess.ID, ExpiresAt: sess.ExpiresAt, User: user})
}

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
}

// handleRegister creates a student account and logs it in.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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

	user, err := h.createUser(r, req.Username, req.DisplayName, req.Password, model.UserRoleStudent)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	sess, err := h.startSession(w, r, user)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loginResponse{Token: sess.ID, ExpiresAt: sess.ExpiresAt, User: user})
}

func (h *Handler) createUser(r *http.Request, username, displayName, password string, role model.UserRole) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = username
	}
	u := model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	id, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		return nil, err
	}
	return h.store.GetUserByID(r.Context(), id)
}

func (h *Handler) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.UserFromContext(r.Context()))
}
