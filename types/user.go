package types

import "time"

// Role is the account kind. Every user is exactly one of RoleAgent or RoleClient.
type Role string

const (
	// RoleAgent publishes and manages property listings.
	RoleAgent Role = "Agent"

	// RoleClient browses listings, marks interest and writes reviews.
	RoleClient Role = "Client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAgent || r == RoleClient
}

// User represents an account in the system.
// It contains identity, role, profile and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Role is either Agent or Client.
	Role Role `json:"role" db:"role"`

	// FirstName is the user's given name.
	FirstName string `json:"firstName" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"lastName" db:"last_name"`

	// Email is the login identifier, unique across all users.
	Email string `json:"email" db:"email"`

	// Phone is the contact phone number.
	Phone string `json:"phone" db:"phone"`

	// Agency is the agent's agency. It is set if and only if Role is Agent.
	Agency *string `json:"agency,omitempty" db:"agency"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Summary returns the public view of the user embedded in listings and reviews.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Agency:    u.Agency,
	}
}

// UserSummary is the resolved form of a user reference.
type UserSummary struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role,omitempty"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Agency    *string `json:"agency,omitempty"`
}

// Profile is a user together with the listings they own (agents) and the
// listings they marked as interesting (clients).
type Profile struct {
	User
	Properties           []Listing `json:"properties"`
	InterestedProperties []Listing `json:"interestedProperties"`
}
