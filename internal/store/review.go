package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/primeacre/apiserver/types"
)

type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewSelect = `
		SELECT r.id, r.property_id, r.client_id, r.rating, r.comment, r.edited, r.created_at, r.updated_at,
		       u.first_name, u.last_name
		FROM reviews r
		JOIN users u ON u.id = r.client_id`

// ListByListing returns the listing's reviews in creation order with the
// author's name resolved.
func (r *ReviewRepository) ListByListing(ctx context.Context, listingID string) ([]types.Review, error) {
	const query = reviewSelect + `
		WHERE r.property_id = $1
		ORDER BY r.created_at, r.id`
	return r.queryReviews(ctx, query, listingID)
}

// ListByListings returns the reviews of every given listing, grouped by
// listing ID.
func (r *ReviewRepository) ListByListings(ctx context.Context, listingIDs []string) (map[string][]types.Review, error) {
	grouped := make(map[string][]types.Review, len(listingIDs))
	if len(listingIDs) == 0 {
		return grouped, nil
	}

	const query = reviewSelect + `
		WHERE r.property_id = ANY($1)
		ORDER BY r.created_at, r.id`
	reviews, err := r.queryReviews(ctx, query, pq.Array(listingIDs))
	if err != nil {
		return nil, err
	}
	for _, review := range reviews {
		grouped[review.PropertyID] = append(grouped[review.PropertyID], review)
	}
	return grouped, nil
}

func (r *ReviewRepository) Get(ctx context.Context, id string) (types.Review, error) {
	const query = reviewSelect + `
		WHERE r.id = $1`
	review, err := scanReview(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Review{}, translateReadError(err)
	}
	return review, nil
}

// Create inserts the review. A missing listing or author surfaces as
// ErrNotFound.
func (r *ReviewRepository) Create(ctx context.Context, review types.Review) (types.Review, error) {
	now := time.Now().UTC()
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.Edited = false
	review.CreatedAt = now
	review.UpdatedAt = now

	const query = `
		INSERT INTO reviews (id, property_id, client_id, rating, comment, edited, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		review.ID,
		review.PropertyID,
		review.ClientID,
		review.Rating,
		review.Comment,
		review.Edited,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		return types.Review{}, translateWriteError(err)
	}
	return review, nil
}

// Update writes rating and comment and flags the review as edited.
func (r *ReviewRepository) Update(ctx context.Context, review types.Review) (types.Review, error) {
	review.Edited = true
	review.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE reviews
		SET rating = $1,
			comment = $2,
			edited = TRUE,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, review.Rating, review.Comment, review.UpdatedAt, review.ID)
	if err != nil {
		return types.Review{}, translateWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Review{}, err
	}
	if affected == 0 {
		return types.Review{}, ErrNotFound
	}
	return review, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM reviews WHERE id = $1`
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

func (r *ReviewRepository) queryReviews(ctx context.Context, query string, args ...any) ([]types.Review, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]types.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reviews, nil
}

func scanReview(row rowScanner) (types.Review, error) {
	var review types.Review
	var client types.UserSummary
	if err := row.Scan(
		&review.ID,
		&review.PropertyID,
		&review.ClientID,
		&review.Rating,
		&review.Comment,
		&review.Edited,
		&review.CreatedAt,
		&review.UpdatedAt,
		&client.FirstName,
		&client.LastName,
	); err != nil {
		return types.Review{}, err
	}
	client.ID = review.ClientID
	review.Client = &client
	return review, nil
}
