// Package identity resolves bearer credentials to users.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthorized is returned for any credential that cannot be resolved to
// a user. Callers should not distinguish between the underlying reasons.
var ErrUnauthorized = errors.New("unauthorized")

// User is the caller identity as reported by the identity service.
type User struct {
	ID    string
	Email string
}

// Verifier resolves a raw bearer token to a User.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is not of the form "Bearer <token>".
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
