package services

import (
	"context"
	"errors"
	"strings"

	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Role      types.Role
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Agency    string
	Password  string
}

// AuthService registers accounts and verifies credentials.
type AuthService struct {
	users    UserRepository
	hashCost int
}

func NewAuthService(users UserRepository) *AuthService {
	return &AuthService{users: users, hashCost: bcrypt.DefaultCost}
}

// Register creates the account. Agency is stored for agents only and is
// required for them.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	user := types.User{
		Role:      in.Role,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     normalizeEmail(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
	}

	if !user.Role.Valid() {
		return types.User{}, invalidInput("role must be Agent or Client")
	}
	if user.FirstName == "" || user.LastName == "" || user.Email == "" || user.Phone == "" {
		return types.User{}, invalidInput("firstName, lastName, email and phone are required")
	}
	if len(in.Password) < MinPasswordLength {
		return types.User{}, invalidInput("password must be at least %d characters", MinPasswordLength)
	}
	if len(in.Password) > MaxPasswordBytes {
		return types.User{}, invalidInput("password must be at most %d bytes", MaxPasswordBytes)
	}
	if user.Role == types.RoleAgent {
		agency := strings.TrimSpace(in.Agency)
		if agency == "" {
			return types.User{}, invalidInput("agency is required for agents")
		}
		user.Agency = &agency
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = string(hashed)

	return s.users.Create(ctx, user)
}

// Login returns the account matching email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
