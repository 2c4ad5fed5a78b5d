package types

import "time"

// PropertyType classifies a listing.
type PropertyType string

const (
	PropertyTypeApartment  PropertyType = "Apartment"
	PropertyTypeHouse      PropertyType = "House"
	PropertyTypeCondo      PropertyType = "Condo"
	PropertyTypeLand       PropertyType = "Land"
	PropertyTypeCommercial PropertyType = "Commercial"
)

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyTypeApartment, PropertyTypeHouse, PropertyTypeCondo, PropertyTypeLand, PropertyTypeCommercial:
		return true
	default:
		return false
	}
}

// ListingStatus is the market status of a listing.
type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "Available"
	ListingStatusSold      ListingStatus = "Sold"
	ListingStatusPending   ListingStatus = "Pending"
)

// Valid reports whether s is a known listing status.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusAvailable, ListingStatusSold, ListingStatusPending:
		return true
	default:
		return false
	}
}

// Listing represents a property offered by an agent.
type Listing struct {
	// ID is the unique identifier of the listing.
	ID string `json:"id" db:"id"`

	// Title is the headline shown in listing cards.
	Title string `json:"title" db:"title"`

	// Description is the free-text body of the listing.
	Description string `json:"description" db:"description"`

	// Price is the asking price. Always positive.
	Price float64 `json:"price" db:"price"`

	// Location is a free-text address or area.
	Location string `json:"location" db:"location"`

	// Size is the floor area in square feet, when known.
	Size *float64 `json:"size,omitempty" db:"size"`

	// Bedrooms is the bedroom count, when known.
	Bedrooms *int `json:"bedrooms,omitempty" db:"bedrooms"`

	// Bathrooms is the bathroom count, when known.
	Bathrooms *int `json:"bathrooms,omitempty" db:"bathrooms"`

	// PropertyType is one of Apartment, House, Condo, Land or Commercial.
	PropertyType PropertyType `json:"propertyType" db:"property_type"`

	// Status is one of Available, Sold or Pending.
	Status ListingStatus `json:"status" db:"status"`

	// AgentID references the owning agent. Immutable after creation.
	AgentID string `json:"agentId" db:"agent_id"`

	// Agent is the resolved owning agent. Populated on reads.
	Agent *UserSummary `json:"agent,omitempty" db:"-"`

	// Images is the ordered list of image URLs. Never empty.
	Images []string `json:"images" db:"images"`

	// Reviews are the reviews written for this listing. Populated on reads.
	Reviews []Review `json:"reviews" db:"-"`

	// ListedAt is the listing date, defaulting to the creation time.
	ListedAt time.Time `json:"dateListed" db:"listed_at"`

	// CreatedAt is the timestamp at which the listing was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the listing.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
