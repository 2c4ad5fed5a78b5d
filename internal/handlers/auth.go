package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/internal/session"
	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/types"
	"go.uber.org/zap"
)

// Authenticator registers accounts and verifies credentials.
type Authenticator interface {
	Register(ctx context.Context, in services.RegisterInput) (types.User, error)
	Login(ctx context.Context, email, password string) (types.User, error)
}

// UserLookup resolves the user behind a session.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (types.User, error)
}

// AuthHandler provides cookie session endpoints.
type AuthHandler struct {
	auth     Authenticator
	users    UserLookup
	sessions *session.Manager
	log      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth Authenticator, users UserLookup, sessions *session.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, sessions: sessions, log: log}
}

// AuthRouter registers auth routes on the given router. limit guards the
// credential endpoints.
func AuthRouter(r chi.Router, h *AuthHandler, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/register", h.Register)
	r.With(limit).Post("/login", h.Login)
	r.With(session.Require(session.Authenticated)).Post("/logout", h.Logout)
	r.Get("/status", h.Status)
}

type RegisterRequest struct {
	Role      string `json:"role" validate:"required,oneof=Agent Client"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=40"`
	Agency    string `json:"agency" validate:"required_if=Role Agent,max=200"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse is returned after a successful register or login.
type SessionResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

// StatusResponse reports whether the caller holds a valid session.
type StatusResponse struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	User            *StatusUser `json:"user,omitempty"`
}

type StatusUser struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      types.Role `json:"role"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
}

// Register creates a new account and starts a session for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.Register(r.Context(), services.RegisterInput{
		Role:      types.Role(req.Role),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Agency:    req.Agency,
		Password:  req.Password,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "user not found")
		return
	}

	if !h.startSession(w, user) {
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{
		Message: fmt.Sprintf("%s registered successfully", user.Role),
		User:    user,
	})
}

// Login verifies credentials and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err, "user not found")
		return
	}

	if !h.startSession(w, user) {
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Message: fmt.Sprintf("%s logged in successfully", user.Role),
		User:    user,
	})
}

// Logout ends the caller's session. The cookie is cleared even when the
// token could not be revoked server-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if identity, ok := session.FromContext(r.Context()); ok {
		if err := h.sessions.Revoke(r.Context(), identity); err != nil {
			h.log.Warn("session revocation failed", zap.String("user_id", identity.UserID), zap.Error(err))
		}
	}
	h.sessions.ClearCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

// Status reports the caller's session. A session whose user no longer
// exists is reported as unauthenticated.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := session.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, StatusResponse{})
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, StatusResponse{})
			return
		}
		writeServiceError(w, h.log, err, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		IsAuthenticated: true,
		User: &StatusUser{
			ID:        user.ID,
			Email:     user.Email,
			Role:      user.Role,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		},
	})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, user types.User) bool {
	token, identity, err := h.sessions.Issue(user)
	if err != nil {
		h.log.Error("issue session token", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return false
	}
	h.sessions.SetCookie(w, token, identity)
	return true
}
