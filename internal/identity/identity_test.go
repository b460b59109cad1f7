package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"imageforge-backend/internal/identity"
)

const testSecret = "test-secret-key-for-jwt-signing-must-be-long-enough"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", identity.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", identity.BearerToken("bearer   abc "))
	assert.Equal(t, "", identity.BearerToken("Basic abc"))
	assert.Equal(t, "", identity.BearerToken("abc"))
	assert.Equal(t, "", identity.BearerToken(""))
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v := identity.NewJWTVerifier(testSecret)
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":   "user-123",
		"email": "fox@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	user, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)
	assert.Equal(t, "fox@example.com", user.Email)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := identity.NewJWTVerifier(testSecret)
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not a jwt", token: "invalid-token"},
		{name: "wrong secret", token: signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{"sub": "u", "exp": future})},
		{name: "expired", token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()})},
		{name: "no expiry", token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u"})},
		{name: "missing sub", token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": future})},
		{name: "wrong algorithm", token: signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "u", "exp": future})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := v.Verify(context.Background(), tt.token)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, identity.ErrUnauthorized)
		})
	}
}

type fakeAuth struct {
	gotrue.Client
	token string
	resp  *types.UserResponse
	err   error
}

func (f *fakeAuth) WithToken(token string) gotrue.Client {
	f.token = token
	return f
}

func (f *fakeAuth) GetUser() (*types.UserResponse, error) {
	return f.resp, f.err
}

func TestGoTrueVerifier_ResolvesUser(t *testing.T) {
	id := uuid.New()
	auth := &fakeAuth{resp: &types.UserResponse{User: types.User{ID: id, Email: "fox@example.com"}}}
	v := identity.NewGoTrueVerifier(auth)

	user, err := v.Verify(context.Background(), "access-token")
	require.NoError(t, err)
	assert.Equal(t, id.String(), user.ID)
	assert.Equal(t, "fox@example.com", user.Email)
	assert.Equal(t, "access-token", auth.token)
}

func TestGoTrueVerifier_Rejects(t *testing.T) {
	t.Run("empty token skips lookup", func(t *testing.T) {
		auth := &fakeAuth{}
		_, err := identity.NewGoTrueVerifier(auth).Verify(context.Background(), "")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
		assert.Empty(t, auth.token)
	})

	t.Run("auth error", func(t *testing.T) {
		auth := &fakeAuth{err: errors.New("invalid JWT")}
		_, err := identity.NewGoTrueVerifier(auth).Verify(context.Background(), "bad")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("nil user id", func(t *testing.T) {
		auth := &fakeAuth{resp: &types.UserResponse{}}
		_, err := identity.NewGoTrueVerifier(auth).Verify(context.Background(), "token")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}
