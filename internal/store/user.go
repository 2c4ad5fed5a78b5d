package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/primeacre/apiserver/types"
)

// UserRepository handles persistence for users and their interest set.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, role, first_name, last_name, email, phone, agency, password_hash, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, role, first_name, last_name, email, phone, agency, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		string(user.Role),
		user.FirstName,
		user.LastName,
		user.Email,
		user.Phone,
		nullString(user.Agency),
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, translateWriteError(err)
	}
	return user, nil
}

// Update replaces the mutable profile fields. Role and password hash are
// written as given; callers are expected to carry them over unchanged.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET first_name = $1,
			last_name = $2,
			email = $3,
			phone = $4,
			agency = $5,
			password_hash = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Phone,
		nullString(user.Agency),
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translateWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// Delete removes the user. Owned listings, authored reviews and interest
// markers go with it through ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
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

// AddInterest adds listingID to the user's interested set. It reports whether
// the set changed; a repeated call is a no-op. ErrNotFound is returned when
// either side no longer exists.
func (r *UserRepository) AddInterest(ctx context.Context, userID, listingID string) (bool, error) {
	const query = `
		INSERT INTO listing_interests (user_id, listing_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, listing_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, userID, listingID, time.Now().UTC())
	if err != nil {
		return false, translateWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	var role string
	var agency sql.NullString
	err := row.Scan(
		&user.ID,
		&role,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Phone,
		&agency,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, translateReadError(err)
	}
	user.Role = types.Role(role)
	if agency.Valid {
		user.Agency = &agency.String
	}
	return user, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
