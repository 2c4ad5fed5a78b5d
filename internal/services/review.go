package services

import (
	"context"
	"errors"
	"strings"

	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/types"
)

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	ListByListing(ctx context.Context, listingID string) ([]types.Review, error)
	ListByListings(ctx context.Context, listingIDs []string) (map[string][]types.Review, error)
	Get(ctx context.Context, id string) (types.Review, error)
	Create(ctx context.Context, review types.Review) (types.Review, error)
	Update(ctx context.Context, review types.Review) (types.Review, error)
	Delete(ctx context.Context, id string) error
}

// ReviewUpdate holds the review fields an author may change.
type ReviewUpdate struct {
	Rating  *int
	Comment *string
}

// ReviewService orchestrates the review lifecycle.
type ReviewService struct {
	reviews  ReviewRepository
	listings ListingRepository
	users    UserRepository
}

func NewReviewService(reviews ReviewRepository, listings ListingRepository, users UserRepository) *ReviewService {
	return &ReviewService{reviews: reviews, listings: listings, users: users}
}

// Create records a client's review of a listing.
func (s *ReviewService) Create(ctx context.Context, clientID, listingID string, rating int, comment string) (types.Review, error) {
	if err := validateRating(rating); err != nil {
		return types.Review{}, err
	}

	client, err := s.users.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Review{}, ErrUnauthenticated
		}
		return types.Review{}, err
	}
	if client.Role != types.RoleClient {
		return types.Review{}, forbidden("only clients can write reviews")
	}
	if _, err := s.listings.Get(ctx, listingID); err != nil {
		return types.Review{}, err
	}

	review, err := s.reviews.Create(ctx, types.Review{
		PropertyID: listingID,
		ClientID:   clientID,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
	})
	if err != nil {
		return types.Review{}, err
	}
	review.Client = &types.UserSummary{ID: client.ID, FirstName: client.FirstName, LastName: client.LastName}
	return review, nil
}

// List returns the listing's reviews in creation order.
func (s *ReviewService) List(ctx context.Context, listingID string) ([]types.Review, error) {
	if _, err := s.listings.Get(ctx, listingID); err != nil {
		return nil, err
	}
	return s.reviews.ListByListing(ctx, listingID)
}

// Update changes rating and/or comment. Only the author may update a review,
// and every successful update marks it edited.
func (s *ReviewService) Update(ctx context.Context, listingID, reviewID, callerID string, update ReviewUpdate) (types.Review, error) {
	review, err := s.authored(ctx, listingID, reviewID, callerID)
	if err != nil {
		return types.Review{}, err
	}

	if update.Rating != nil {
		if err := validateRating(*update.Rating); err != nil {
			return types.Review{}, err
		}
		review.Rating = *update.Rating
	}
	if update.Comment != nil {
		review.Comment = strings.TrimSpace(*update.Comment)
	}

	return s.reviews.Update(ctx, review)
}

// Delete removes the review. Only the author may delete it.
func (s *ReviewService) Delete(ctx context.Context, listingID, reviewID, callerID string) error {
	if _, err := s.authored(ctx, listingID, reviewID, callerID); err != nil {
		return err
	}
	return s.reviews.Delete(ctx, reviewID)
}

func (s *ReviewService) authored(ctx context.Context, listingID, reviewID, callerID string) (types.Review, error) {
	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return types.Review{}, err
	}
	if review.PropertyID != listingID {
		return types.Review{}, store.ErrNotFound
	}
	if review.ClientID != callerID {
		return types.Review{}, forbidden("only the author can change this review")
	}
	return review, nil
}

func validateRating(rating int) error {
	if rating < types.MinRating || rating > types.MaxRating {
		return invalidInput("rating must be between %d and %d", types.MinRating, types.MaxRating)
	}
	return nil
}
