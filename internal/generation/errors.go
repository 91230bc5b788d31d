package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

var (
	ErrRateLimited   = errors.New("generation rate limited")
	ErrQuotaExceeded = errors.New("generation quota exceeded")
	ErrFailed        = errors.New("generation failed")
)

// Error is an upstream generation failure. Kind is one of ErrRateLimited,
// ErrQuotaExceeded or ErrFailed.
type Error struct {
	Kind       error
	StatusCode int // zero when the failure was not an HTTP response
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Classify maps an upstream error onto the generation taxonomy. Context
// errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}

	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return &Error{Kind: kindForStatus(status), StatusCode: status, Err: err}
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrQuotaExceeded
	default:
		return ErrFailed
	}
}

// UserMessage returns the text shown to the end user for err.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "Rate limits exceeded. Please try again in a moment."
	case errors.Is(err, ErrQuotaExceeded):
		return "Usage limits reached. Please add credits to continue."
	default:
		return "Failed to get AI response. Please try again."
	}
}

// HTTPStatus returns the status code a server should answer with for err.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
