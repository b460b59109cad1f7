package generation

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, caller-visible failure category.
type Code string

const (
	CodeUnauthorized          Code = "unauthorized"
	CodeInvalidRequest        Code = "invalid_request"
	CodeInsufficientCredits   Code = "insufficient_credits"
	CodeRateLimited           Code = "rate_limited"
	CodeProviderMisconfigured Code = "provider_misconfigured"
	CodeProviderUnavailable   Code = "provider_unavailable"
	CodeGenerationRejected    Code = "generation_rejected"
	CodeTimedOut              Code = "timed_out"
	CodePersistenceError      Code = "persistence_error"
	CodeInternalError         Code = "internal_error"
)

type errorInfo struct {
	status    int
	message   string
	retryable bool
}

var errorInfos = map[Code]errorInfo{
	CodeUnauthorized:          {http.StatusUnauthorized, "Missing or invalid credentials.", false},
	CodeInvalidRequest:        {http.StatusBadRequest, "Prompt is required.", false},
	CodeInsufficientCredits:   {http.StatusPaymentRequired, "Insufficient credits.", false},
	CodeRateLimited:           {http.StatusTooManyRequests, "Too many requests. Please slow down.", true},
	CodeProviderMisconfigured: {http.StatusInternalServerError, "Image generation is not available right now. No credits were charged.", false},
	CodeProviderUnavailable:   {http.StatusInternalServerError, "Failed to start image generation. Please wait a moment and try again.", true},
	CodeGenerationRejected:    {http.StatusInternalServerError, "AI generation failed. Your prompt may violate content policies; try rephrasing it.", false},
	CodeTimedOut:              {http.StatusInternalServerError, "Image generation timed out. Please wait a moment and try again.", true},
	CodePersistenceError:      {http.StatusInternalServerError, "The image could not be saved. Please wait a moment and try again.", true},
	CodeInternalError:         {http.StatusInternalServerError, "An unexpected error occurred.", false},
}

// Error is a failure mapped to one Code and HTTP status. Err keeps the
// underlying cause for logs; it is never shown to callers.
type Error struct {
	Code      Code
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with the standard status, message and
// retryability for code.
func NewError(code Code, cause error) *Error {
	info, ok := errorInfos[code]
	if !ok {
		code = CodeInternalError
		info = errorInfos[CodeInternalError]
	}
	return &Error{
		Code:      code,
		Status:    info.status,
		Message:   info.message,
		Retryable: info.retryable,
		Err:       cause,
	}
}

// AsError returns err as an *Error, mapping anything unrecognised to
// CodeInternalError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}
	return NewError(CodeInternalError, err)
}
