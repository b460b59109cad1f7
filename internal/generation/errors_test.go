package generation_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"imageforge-backend/internal/generation"
)

func TestNewError_Statuses(t *testing.T) {
	tests := []struct {
		code   generation.Code
		status int
	}{
		{generation.CodeUnauthorized, http.StatusUnauthorized},
		{generation.CodeInvalidRequest, http.StatusBadRequest},
		{generation.CodeInsufficientCredits, http.StatusPaymentRequired},
		{generation.CodeRateLimited, http.StatusTooManyRequests},
		{generation.CodeProviderMisconfigured, http.StatusInternalServerError},
		{generation.CodeProviderUnavailable, http.StatusInternalServerError},
		{generation.CodeGenerationRejected, http.StatusInternalServerError},
		{generation.CodeTimedOut, http.StatusInternalServerError},
		{generation.CodePersistenceError, http.StatusInternalServerError},
		{generation.CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := generation.NewError(tt.code, nil)
			assert.Equal(t, tt.status, err.Status)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestNewError_UnknownCode(t *testing.T) {
	err := generation.NewError("made_up", nil)
	assert.Equal(t, generation.CodeInternalError, err.Code)
}

func TestAsError(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("handler: %w", generation.NewError(generation.CodeTimedOut, cause))

	got := generation.AsError(wrapped)
	assert.Equal(t, generation.CodeTimedOut, got.Code)
	assert.ErrorIs(t, got, cause)

	plain := generation.AsError(cause)
	assert.Equal(t, generation.CodeInternalError, plain.Code)
	assert.Nil(t, generation.AsError(nil))
}
