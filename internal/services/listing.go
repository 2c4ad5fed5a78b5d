package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/types"
)

// ListingRepository defines persistence operations for listings.
type ListingRepository interface {
	List(ctx context.Context) ([]types.Listing, error)
	Get(ctx context.Context, id string) (types.Listing, error)
	ListByAgent(ctx context.Context, agentID string) ([]types.Listing, error)
	ListInterestedBy(ctx context.Context, userID string) ([]types.Listing, error)
	Create(ctx context.Context, listing types.Listing) (types.Listing, error)
	Update(ctx context.Context, listing types.Listing) (types.Listing, error)
	Delete(ctx context.Context, id string) error
	ReferencedImages(ctx context.Context) ([]string, error)
}

// ImageStore uploads and retires listing images.
type ImageStore interface {
	Upload(ctx context.Context, uploads []Upload) ([]string, error)
	Hosted(url string) bool
	ImageDiscarder
}

// ListingInput carries listing fields from a request. Nil fields were not
// supplied. A nil Images slice means no URL list was supplied.
type ListingInput struct {
	Title        *string
	Description  *string
	Price        *float64
	Location     *string
	Size         *float64
	Bedrooms     *int
	Bathrooms    *int
	PropertyType *types.PropertyType
	Status       *types.ListingStatus
	ListedAt     *time.Time
	Images       []string
}

// ListingService orchestrates the listing lifecycle.
type ListingService struct {
	listings ListingRepository
	reviews  ReviewRepository
	users    UserRepository
	media    ImageStore
}

func NewListingService(listings ListingRepository, reviews ReviewRepository, users UserRepository, media ImageStore) *ListingService {
	return &ListingService{
		listings: listings,
		reviews:  reviews,
		users:    users,
		media:    media,
	}
}

// List returns every listing with its agent and reviews resolved.
func (s *ListingService) List(ctx context.Context) ([]types.Listing, error) {
	listings, err := s.listings.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return listings, nil
	}

	ids := make([]string, 0, len(listings))
	for _, listing := range listings {
		ids = append(ids, listing.ID)
	}
	grouped, err := s.reviews.ListByListings(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if reviews, ok := grouped[listings[i].ID]; ok {
			listings[i].Reviews = reviews
		}
	}
	return listings, nil
}

// Get returns one listing with its agent and reviews resolved.
func (s *ListingService) Get(ctx context.Context, id string) (types.Listing, error) {
	listing, err := s.listings.Get(ctx, id)
	if err != nil {
		return types.Listing{}, err
	}
	reviews, err := s.reviews.ListByListing(ctx, id)
	if err != nil {
		return types.Listing{}, err
	}
	listing.Reviews = reviews
	return listing, nil
}

// Create publishes a listing owned by agentID. Uploaded files take
// precedence over image URLs in the input; one of the two is required.
func (s *ListingService) Create(ctx context.Context, agentID string, in ListingInput, uploads []Upload) (types.Listing, error) {
	agent, err := s.users.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Listing{}, forbidden("only agents can add properties")
		}
		return types.Listing{}, err
	}
	if agent.Role != types.RoleAgent {
		return types.Listing{}, forbidden("only agents can add properties")
	}

	listing := types.Listing{
		AgentID: agent.ID,
		Status:  types.ListingStatusAvailable,
	}
	applyListingInput(&listing, in)
	if err := validateListing(listing); err != nil {
		return types.Listing{}, err
	}

	var uploaded []string
	switch {
	case len(uploads) > 0:
		if uploaded, err = s.media.Upload(ctx, uploads); err != nil {
			return types.Listing{}, err
		}
		listing.Images = uploaded
	case len(cleanURLs(in.Images)) > 0:
		images := cleanURLs(in.Images)
		if err := s.checkImageURLs(images, nil); err != nil {
			return types.Listing{}, err
		}
		listing.Images = images
	default:
		return types.Listing{}, invalidInput("at least one image is required")
	}

	created, err := s.listings.Create(ctx, listing)
	if err != nil {
		s.media.Discard(ctx, uploaded, "listing insert failed")
		return types.Listing{}, err
	}

	summary := agent.Summary()
	created.Agent = &summary
	created.Reviews = []types.Review{}
	return created, nil
}

// Update applies a shallow merge of in to the listing. Only the owning agent
// may update it. New uploads replace the image list; images dropped from the
// list are discarded once the update is stored.
func (s *ListingService) Update(ctx context.Context, id, callerID string, in ListingInput, uploads []Upload) (types.Listing, error) {
	listing, err := s.listings.Get(ctx, id)
	if err != nil {
		return types.Listing{}, err
	}
	if listing.AgentID != callerID {
		return types.Listing{}, forbidden("only the owning agent can change this property")
	}

	previous := listing.Images
	applyListingInput(&listing, in)
	if err := validateListing(listing); err != nil {
		return types.Listing{}, err
	}

	var uploaded []string
	switch {
	case len(uploads) > 0:
		if uploaded, err = s.media.Upload(ctx, uploads); err != nil {
			return types.Listing{}, err
		}
		listing.Images = uploaded
	case in.Images != nil:
		images := cleanURLs(in.Images)
		if len(images) == 0 {
			return types.Listing{}, invalidInput("at least one image is required")
		}
		if err := s.checkImageURLs(images, previous); err != nil {
			return types.Listing{}, err
		}
		listing.Images = images
	}

	if _, err := s.listings.Update(ctx, listing); err != nil {
		s.media.Discard(ctx, uploaded, "listing update failed")
		return types.Listing{}, err
	}
	s.media.Discard(ctx, superseded(previous, listing.Images), "images replaced")

	return s.Get(ctx, id)
}

// Delete removes the listing and discards its images. Only the owning agent
// may delete it.
func (s *ListingService) Delete(ctx context.Context, id, callerID string) error {
	listing, err := s.listings.Get(ctx, id)
	if err != nil {
		return err
	}
	if listing.AgentID != callerID {
		return forbidden("only the owning agent can delete this property")
	}

	if err := s.listings.Delete(ctx, id); err != nil {
		return err
	}
	s.media.Discard(ctx, listing.Images, "listing deleted")
	return nil
}

// checkImageURLs rejects URLs of stored uploads unless the listing already
// holds them. A stored image belongs to exactly one listing.
func (s *ListingService) checkImageURLs(images, held []string) error {
	allowed := make(map[string]bool, len(held))
	for _, url := range held {
		allowed[url] = true
	}
	for _, url := range images {
		if s.media.Hosted(url) && !allowed[url] {
			return invalidInput("image %q belongs to another property", url)
		}
	}
	return nil
}

func applyListingInput(listing *types.Listing, in ListingInput) {
	if in.Title != nil {
		listing.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		listing.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		listing.Price = *in.Price
	}
	if in.Location != nil {
		listing.Location = strings.TrimSpace(*in.Location)
	}
	if in.Size != nil {
		listing.Size = in.Size
	}
	if in.Bedrooms != nil {
		listing.Bedrooms = in.Bedrooms
	}
	if in.Bathrooms != nil {
		listing.Bathrooms = in.Bathrooms
	}
	if in.PropertyType != nil {
		listing.PropertyType = *in.PropertyType
	}
	if in.Status != nil {
		listing.Status = *in.Status
	}
	if in.ListedAt != nil {
		listing.ListedAt = in.ListedAt.UTC()
	}
}

func validateListing(listing types.Listing) error {
	switch {
	case listing.Title == "":
		return invalidInput("title is required")
	case listing.Description == "":
		return invalidInput("description is required")
	case listing.Location == "":
		return invalidInput("location is required")
	case !finite(listing.Price):
		return invalidInput("price must be a finite number")
	case listing.Price <= 0:
		return invalidInput("price must be positive")
	case listing.Size != nil && !finite(*listing.Size):
		return invalidInput("size must be a finite number")
	case listing.Size != nil && *listing.Size <= 0:
		return invalidInput("size must be positive")
	case listing.Bedrooms != nil && *listing.Bedrooms < 0:
		return invalidInput("bedrooms cannot be negative")
	case listing.Bathrooms != nil && *listing.Bathrooms < 0:
		return invalidInput("bathrooms cannot be negative")
	case !listing.PropertyType.Valid():
		return invalidInput("propertyType must be one of Apartment, House, Condo, Land or Commercial")
	case !listing.Status.Valid():
		return invalidInput("status must be one of Available, Sold or Pending")
	}
	return nil
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// superseded returns the entries of previous that current no longer holds.
func superseded(previous, current []string) []string {
	kept := make(map[string]bool, len(current))
	for _, url := range current {
		kept[url] = true
	}
	var dropped []string
	for _, url := range previous {
		if !kept[url] {
			dropped = append(dropped, url)
		}
	}
	return dropped
}
