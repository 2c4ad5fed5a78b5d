package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/internal/session"
	"github.com/primeacre/apiserver/types"
	"go.uber.org/zap"
)

const userNotFound = "user not found"

// Profiles is the profile use-case surface the handlers depend on.
type Profiles interface {
	Profile(ctx context.Context, id string) (types.Profile, error)
	UpdateProfile(ctx context.Context, id string, update services.ProfileUpdate) (types.User, error)
	Delete(ctx context.Context, id string) error
}

// UserHandler serves the caller's own profile.
type UserHandler struct {
	profiles Profiles
	sessions *session.Manager
	log      *zap.Logger
}

func NewUserHandler(profiles Profiles, sessions *session.Manager, log *zap.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, sessions: sessions, log: log}
}

// UserRouter registers profile routes. Every route requires a session.
func UserRouter(r chi.Router, h *UserHandler) {
	r.Use(session.Require(session.Authenticated))
	r.Get("/profile", h.GetProfile)
	r.Patch("/profile", h.UpdateProfile)
	r.Delete("/profile", h.DeleteAccount)
}

type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,min=1,max=40"`
	Agency    *string `json:"agency" validate:"omitempty,min=1,max=200"`
}

// GetProfile returns the caller with owned and interested listings resolved.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	profile, err := h.profiles.Profile(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, h.log, err, userNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.profiles.UpdateProfile(r.Context(), identity.UserID, services.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Agency:    req.Agency,
	})
	if err != nil {
		writeServiceError(w, h.log, err, userNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteAccount removes the caller's account and ends the session.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	if err := h.profiles.Delete(r.Context(), identity.UserID); err != nil {
		writeServiceError(w, h.log, err, userNotFound)
		return
	}
	if err := h.sessions.Revoke(r.Context(), identity); err != nil {
		h.log.Warn("session revocation failed", zap.String("user_id", identity.UserID), zap.Error(err))
	}
	h.sessions.ClearCookie(w)
	writeMessage(w, http.StatusOK, "User account deleted")
}
