package services

import (
	"context"
	"strings"
	"testing"

	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type harness struct {
	db        *memoryDB
	users     memoryUsers
	listings  memoryListings
	reviews   memoryReviews
	objects   *memoryObjects
	publisher *recordingPublisher

	auth     *AuthService
	profiles *UserService
	listing  *ListingService
	interest *InterestService
	review   *ReviewService
	media    *MediaService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newMemoryDB()
	h := &harness{
		db:        db,
		users:     memoryUsers{db},
		listings:  memoryListings{db},
		reviews:   memoryReviews{db},
		objects:   newMemoryObjects(),
		publisher: &recordingPublisher{},
	}
	h.media = NewMediaService(h.objects, h.publisher, "image-cleanup", config.UploadConfig{MaxImages: 5, MaxImageBytes: 1 << 20}, nil)
	h.auth = NewAuthService(h.users)
	h.auth.hashCost = bcrypt.MinCost
	h.profiles = NewUserService(h.users, h.listings, h.media)
	h.listing = NewListingService(h.listings, h.reviews, h.users, h.media)
	h.interest = NewInterestService(h.users, h.listings)
	h.review = NewReviewService(h.reviews, h.listings, h.users)
	return h
}

func (h *harness) register(t *testing.T, role types.Role, email string) types.User {
	t.Helper()
	in := RegisterInput{
		Role:      role,
		FirstName: "First",
		LastName:  "Last",
		Email:     email,
		Phone:     "555-0100",
		Password:  "correct horse",
	}
	if role == types.RoleAgent {
		in.Agency = "Acme Realty"
	}
	user, err := h.auth.Register(context.Background(), in)
	require.NoError(t, err)
	return user
}

func (h *harness) createListing(t *testing.T, agentID string, images ...string) types.Listing {
	t.Helper()
	if len(images) == 0 {
		images = []string{"https://photos.example/front.jpg"}
	}
	listing, err := h.listing.Create(context.Background(), agentID, validInput(images...), nil)
	require.NoError(t, err)
	return listing
}

func validInput(images ...string) ListingInput {
	return ListingInput{
		Title:        ptr("Sunny loft"),
		Description:  ptr("Two bedrooms near the park"),
		Price:        ptr(250000.0),
		Location:     ptr("Downtown"),
		PropertyType: ptr(types.PropertyTypeApartment),
		Images:       images,
	}
}

func upload(name string) Upload {
	return Upload{Filename: name, Size: 3, Body: strings.NewReader("img")}
}

func ptr[T any](v T) *T {
	return &v
}
