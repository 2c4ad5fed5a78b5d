package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/primeacre/apiserver/types"
)

// ListingRepository handles persistence for listings.
type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

const listingSelect = `
		SELECT l.id, l.title, l.description, l.price, l.location, l.size, l.bedrooms, l.bathrooms,
		       l.property_type, l.status, l.agent_id, l.images, l.listed_at, l.created_at, l.updated_at,
		       u.first_name, u.last_name, u.email, u.phone, u.agency
		FROM listings l
		JOIN users u ON u.id = l.agent_id`

// List returns every listing with its agent resolved, newest first.
func (r *ListingRepository) List(ctx context.Context) ([]types.Listing, error) {
	const query = listingSelect + `
		ORDER BY l.listed_at DESC, l.id`
	return r.queryListings(ctx, query)
}

func (r *ListingRepository) Get(ctx context.Context, id string) (types.Listing, error) {
	const query = listingSelect + `
		WHERE l.id = $1`
	listing, err := scanListing(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Listing{}, translateReadError(err)
	}
	return listing, nil
}

// ListByAgent returns the agent's owned listings in listing order.
func (r *ListingRepository) ListByAgent(ctx context.Context, agentID string) ([]types.Listing, error) {
	const query = listingSelect + `
		WHERE l.agent_id = $1
		ORDER BY l.listed_at, l.id`
	return r.queryListings(ctx, query, agentID)
}

// ListInterestedBy returns the listings in the user's interested set.
func (r *ListingRepository) ListInterestedBy(ctx context.Context, userID string) ([]types.Listing, error) {
	const query = listingSelect + `
		JOIN listing_interests i ON i.listing_id = l.id
		WHERE i.user_id = $1
		ORDER BY i.created_at, l.id`
	return r.queryListings(ctx, query, userID)
}

func (r *ListingRepository) Create(ctx context.Context, listing types.Listing) (types.Listing, error) {
	now := time.Now().UTC()
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.ListedAt.IsZero() {
		listing.ListedAt = now
	}
	listing.CreatedAt = now
	listing.UpdatedAt = now

	const query = `
		INSERT INTO listings (
			id, title, description, price, location, size, bedrooms, bathrooms,
			property_type, status, agent_id, images, listed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		listing.ID,
		listing.Title,
		listing.Description,
		listing.Price,
		listing.Location,
		nullFloat(listing.Size),
		nullInt(listing.Bedrooms),
		nullInt(listing.Bathrooms),
		string(listing.PropertyType),
		string(listing.Status),
		listing.AgentID,
		pq.Array(listing.Images),
		listing.ListedAt,
		listing.CreatedAt,
		listing.UpdatedAt,
	)
	if err != nil {
		return types.Listing{}, translateWriteError(err)
	}
	return listing, nil
}

// Update writes every mutable column. The owning agent is part of the match
// so a listing can never move between agents.
func (r *ListingRepository) Update(ctx context.Context, listing types.Listing) (types.Listing, error) {
	listing.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE listings
		SET title = $1,
			description = $2,
			price = $3,
			location = $4,
			size = $5,
			bedrooms = $6,
			bathrooms = $7,
			property_type = $8,
			status = $9,
			images = $10,
			listed_at = $11,
			updated_at = $12
		WHERE id = $13 AND agent_id = $14`
	result, err := r.db.ExecContext(
		ctx,
		query,
		listing.Title,
		listing.Description,
		listing.Price,
		listing.Location,
		nullFloat(listing.Size),
		nullInt(listing.Bedrooms),
		nullInt(listing.Bathrooms),
		string(listing.PropertyType),
		string(listing.Status),
		pq.Array(listing.Images),
		listing.ListedAt,
		listing.UpdatedAt,
		listing.ID,
		listing.AgentID,
	)
	if err != nil {
		return types.Listing{}, translateWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Listing{}, err
	}
	if affected == 0 {
		return types.Listing{}, ErrNotFound
	}
	return listing, nil
}

// Delete removes the listing. Its reviews and interest markers are removed
// by ON DELETE CASCADE.
func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM listings WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translateWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferencedImages returns every image URL referenced by any listing.
func (r *ListingRepository) ReferencedImages(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT unnest(images) FROM listings`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []string
	for rows.Next() {
		var image string
		if err := rows.Scan(&image); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func (r *ListingRepository) queryListings(ctx context.Context, query string, args ...any) ([]types.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := make([]types.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (types.Listing, error) {
	var listing types.Listing
	var propertyType, status string
	var size sql.NullFloat64
	var bedrooms, bathrooms sql.NullInt64
	var agent types.UserSummary
	var agency sql.NullString
	if err := row.Scan(
		&listing.ID,
		&listing.Title,
		&listing.Description,
		&listing.Price,
		&listing.Location,
		&size,
		&bedrooms,
		&bathrooms,
		&propertyType,
		&status,
		&listing.AgentID,
		pq.Array(&listing.Images),
		&listing.ListedAt,
		&listing.CreatedAt,
		&listing.UpdatedAt,
		&agent.FirstName,
		&agent.LastName,
		&agent.Email,
		&agent.Phone,
		&agency,
	); err != nil {
		return types.Listing{}, err
	}

	listing.PropertyType = types.PropertyType(propertyType)
	listing.Status = types.ListingStatus(status)
	if size.Valid {
		listing.Size = &size.Float64
	}
	if bedrooms.Valid {
		value := int(bedrooms.Int64)
		listing.Bedrooms = &value
	}
	if bathrooms.Valid {
		value := int(bathrooms.Int64)
		listing.Bathrooms = &value
	}

	agent.ID = listing.AgentID
	agent.Role = types.RoleAgent
	if agency.Valid {
		agent.Agency = &agency.String
	}
	listing.Agent = &agent
	listing.Reviews = []types.Review{}
	return listing, nil
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}
