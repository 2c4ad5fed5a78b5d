package session

import (
	"encoding/json"
	"net/http"

	"github.com/primeacre/apiserver/types"
)

// Policy is the capability a route requires of its caller.
type Policy struct {
	authenticated bool
	role          types.Role
}

var (
	// Public admits every request.
	Public = Policy{}

	// Authenticated admits any valid session.
	Authenticated = Policy{authenticated: true}
)

// Role admits sessions whose role is role.
func Role(role types.Role) Policy {
	return Policy{authenticated: true, role: role}
}

// Check evaluates the policy against the identity loaded for a request.
func (p Policy) Check(identity Identity, ok bool) error {
	if !p.authenticated {
		return nil
	}
	if !ok {
		return ErrUnauthenticated
	}
	if p.role != "" && identity.Role != p.role {
		return ErrForbidden
	}
	return nil
}

// Require rejects requests that do not satisfy policy with 401 or 403.
// It expects Manager.Load to have run earlier in the chain.
func Require(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := FromContext(r.Context())
			if err := policy.Check(identity, ok); err != nil {
				status := http.StatusUnauthorized
				message := "authentication required"
				if err == ErrForbidden {
					status = http.StatusForbidden
					message = "only " + string(policy.role) + " accounts may perform this action"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
