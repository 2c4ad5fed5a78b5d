package types

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a client's rating of a listing.
type Review struct {
	// ID is the unique identifier of the review.
	ID string `json:"id" db:"id"`

	// PropertyID references the reviewed listing. Immutable.
	PropertyID string `json:"property" db:"property_id"`

	// ClientID references the authoring client. Immutable.
	ClientID string `json:"clientId" db:"client_id"`

	// Client is the resolved author (first and last name). Populated on reads.
	Client *UserSummary `json:"client,omitempty" db:"-"`

	// Rating is an integer between MinRating and MaxRating.
	Rating int `json:"rating" db:"rating"`

	// Comment is optional free text.
	Comment string `json:"comment" db:"comment"`

	// Edited is set once the author changes the review.
	Edited bool `json:"edited" db:"edited"`

	// CreatedAt is the timestamp at which the review was written.
	CreatedAt time.Time `json:"date" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent edit.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
