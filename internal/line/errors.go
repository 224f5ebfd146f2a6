package line

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature indicates the X-Line-Signature header did not match the body
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMissingSignature indicates the request carried no signature header
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrInvalidPayload indicates the webhook body could not be decoded
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrNoMessages indicates a send call without messages
	ErrNoMessages = errors.New("no messages to send")
)

// APIError is a non-2xx response from the Messaging API
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	RequestID  string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("line api error %d (request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("line api error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
