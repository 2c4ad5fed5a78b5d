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

const reviewNotFound = "review not found"

// Reviews is the review use-case surface the handlers depend on.
type Reviews interface {
	Create(ctx context.Context, clientID, listingID string, rating int, comment string) (types.Review, error)
	List(ctx context.Context, listingID string) ([]types.Review, error)
	Update(ctx context.Context, listingID, reviewID, callerID string, update services.ReviewUpdate) (types.Review, error)
	Delete(ctx context.Context, listingID, reviewID, callerID string) error
}

// ReviewHandler serves the review endpoints nested under a listing.
type ReviewHandler struct {
	reviews Reviews
	log     *zap.Logger
}

func NewReviewHandler(reviews Reviews, log *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, log: log}
}

type CreateReviewRequest struct {
	Rating  *int   `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.List(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	var req CreateReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviews.Create(r.Context(), identity.UserID, chi.URLParam(r, "propertyID"), *req.Rating, req.Comment)
	if err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	var req UpdateReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviews.Update(
		r.Context(),
		chi.URLParam(r, "propertyID"),
		chi.URLParam(r, "reviewID"),
		identity.UserID,
		services.ReviewUpdate{Rating: req.Rating, Comment: req.Comment},
	)
	if err != nil {
		writeServiceError(w, h.log, err, reviewNotFound)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	err := h.reviews.Delete(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "reviewID"), identity.UserID)
	if err != nil {
		writeServiceError(w, h.log, err, reviewNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Review deleted")
}
