package services

import (
	"context"
	"strings"

	"github.com/primeacre/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
	AddInterest(ctx context.Context, userID, listingID string) (bool, error)
}

// ImageDiscarder retires stored images that are no longer referenced.
type ImageDiscarder interface {
	Discard(ctx context.Context, urls []string, reason string)
}

// ProfileUpdate holds the profile fields a user may change. Nil fields are
// left untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Agency    *string
}

// UserService encapsulates profile use-cases.
type UserService struct {
	users    UserRepository
	listings ListingRepository
	media    ImageDiscarder
}

func NewUserService(users UserRepository, listings ListingRepository, media ImageDiscarder) *UserService {
	return &UserService{users: users, listings: listings, media: media}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

// Profile returns the user with owned listings (agents) and interested
// listings (clients) resolved.
func (s *UserService) Profile(ctx context.Context, id string) (types.Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.Profile{}, err
	}

	profile := types.Profile{
		User:                 user,
		Properties:           []types.Listing{},
		InterestedProperties: []types.Listing{},
	}
	if user.Role == types.RoleAgent {
		if profile.Properties, err = s.listings.ListByAgent(ctx, id); err != nil {
			return types.Profile{}, err
		}
	}
	if profile.InterestedProperties, err = s.listings.ListInterestedBy(ctx, id); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

// UpdateProfile applies a shallow merge of update onto the user. Role and
// password cannot be changed here.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (types.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Email != nil {
		user.Email = normalizeEmail(*update.Email)
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Agency != nil {
		if user.Role != types.RoleAgent {
			return types.User{}, invalidInput("only agents have an agency")
		}
		agency := strings.TrimSpace(*update.Agency)
		if agency == "" {
			return types.User{}, invalidInput("agency cannot be empty")
		}
		user.Agency = &agency
	}

	if user.FirstName == "" || user.LastName == "" || user.Email == "" || user.Phone == "" {
		return types.User{}, invalidInput("firstName, lastName, email and phone cannot be empty")
	}

	return s.users.Update(ctx, user)
}

// Delete removes the account. Owned listings, authored reviews and interest
// markers are removed with it; images of removed listings are discarded.
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var images []string
	if user.Role == types.RoleAgent {
		owned, err := s.listings.ListByAgent(ctx, id)
		if err != nil {
			return err
		}
		for _, listing := range owned {
			images = append(images, listing.Images...)
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.media.Discard(ctx, images, "account deleted")
	return nil
}
