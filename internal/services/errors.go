package services

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError means the upstream quota is spent. It is never retried
// inline; background work defers until ResetTime.
type RateLimitError struct {
	ResetTime time.Time
	Usage     *Usage
	Message   string
}

func (e *RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "JustTCG rate limit exceeded"
	}
	return fmt.Sprintf("%s (resets at %s)", msg, e.ResetTime.UTC().Format(time.RFC3339))
}

// APIError is an error reported by JustTCG that retrying will not fix.
type APIError struct {
	Status  int
	Code    string
	Message string
	Raw     []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("JustTCG API error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("JustTCG API error: %s", e.Message)
}

// NetworkError wraps a transport failure. The client retries these.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("JustTCG network error: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports a missing local entity, e.g. an unresolved set.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ValidationError reports a malformed upstream response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid JustTCG response: " + e.Reason
}

// InputError rejects a caller-supplied field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return e.Field + " " + e.Reason
}

// IsRateLimited reports whether err carries a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
