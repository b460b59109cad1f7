package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
)

// GoTrueVerifier asks Supabase Auth who owns the token. Every call is a
// remote lookup; nothing is cached.
type GoTrueVerifier struct {
	auth gotrue.Client
}

func NewGoTrueVerifier(auth gotrue.Client) *GoTrueVerifier {
	return &GoTrueVerifier{auth: auth}
}

func (v *GoTrueVerifier) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := v.auth.WithToken(token).GetUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if resp == nil || resp.ID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	return &User{ID: resp.ID.String(), Email: resp.Email}, nil
}
