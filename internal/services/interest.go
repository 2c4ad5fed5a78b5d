package services

import (
	"context"

	"github.com/primeacre/apiserver/types"
)

// InterestService tracks which listings a client is interested in.
type InterestService struct {
	users    UserRepository
	listings ListingRepository
}

func NewInterestService(users UserRepository, listings ListingRepository) *InterestService {
	return &InterestService{users: users, listings: listings}
}

// MarkInterested adds listingID to the client's interested set. Marking the
// same listing again is a no-op; the result reports whether the set changed.
func (s *InterestService) MarkInterested(ctx context.Context, clientID, listingID string) (bool, error) {
	client, err := s.users.GetByID(ctx, clientID)
	if err != nil {
		return false, err
	}
	if client.Role != types.RoleClient {
		return false, forbidden("only clients can mark interest")
	}
	if _, err := s.listings.Get(ctx, listingID); err != nil {
		return false, err
	}
	return s.users.AddInterest(ctx, clientID, listingID)
}
