// Package session issues and validates the signed session cookie and gates
// routes on the identity it carries.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/types"
)

var (
	// ErrUnauthenticated means the request carries no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the session is valid but lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Identity is the caller resolved from a session token.
type Identity struct {
	UserID    string
	Role      types.Role
	TokenID   string
	ExpiresAt time.Time
}

// Claims are the JWT claims carried in the session cookie.
type Claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Revoker records logged-out tokens until they expire.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Manager issues, parses and revokes session tokens.
type Manager struct {
	secret       []byte
	ttl          time.Duration
	cookieName   string
	cookieSecure bool
	revoker      Revoker
}

// NewManager returns a Manager for cfg. revoker may be nil, in which case
// logout only clears the cookie.
func NewManager(cfg config.SessionConfig, revoker Revoker) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("session secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "primeacre_session"
	}
	return &Manager{
		secret:       []byte(cfg.Secret),
		ttl:          ttl,
		cookieName:   name,
		cookieSecure: cfg.CookieSecure,
		revoker:      revoker,
	}, nil
}

// Issue signs a new session token for user.
func (m *Manager) Issue(user types.User) (string, Identity, error) {
	now := time.Now()
	identity := Identity{
		UserID:    user.ID,
		Role:      user.Role,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(m.ttl),
	}
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.TokenID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Identity{}, err
	}
	return token, identity, nil
}

// Parse validates token and returns the identity it carries. Expired,
// tampered and revoked tokens yield ErrUnauthenticated.
func (m *Manager) Parse(ctx context.Context, token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" || !claims.Role.Valid() {
		return Identity{}, ErrUnauthenticated
	}

	if m.revoker != nil && claims.ID != "" {
		revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, err
		}
		if revoked {
			return Identity{}, ErrUnauthenticated
		}
	}

	return Identity{
		UserID:    claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke invalidates identity's token for the rest of its lifetime.
func (m *Manager) Revoke(ctx context.Context, identity Identity) error {
	if m.revoker == nil || identity.TokenID == "" {
		return nil
	}
	return m.revoker.Revoke(ctx, identity.TokenID, identity.ExpiresAt)
}

// SetCookie writes the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, token string, identity Identity) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  identity.ExpiresAt,
		MaxAge:   int(time.Until(identity.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Load resolves the session cookie, when present and valid, into the request
// context. Requests without a usable session pass through anonymously.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := m.Parse(r.Context(), cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// FromContext returns the identity loaded for the request, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}
