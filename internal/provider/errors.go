package provider

import (
	"errors"
	"fmt"
)

// ErrUserDeclined is returned when the confirmation gate rejects a request
// before any network traffic happens.
var ErrUserDeclined = errors.New("request declined by user")

// HTTPError reports a non-2xx transport-level response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, body)
}

// APIError reports an error envelope the provider embedded in an otherwise
// well-formed response body.
type APIError struct {
	Provider string
	Message  string
	Code     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error (%s): %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// ParseError reports a response body the provider parser could not make
// sense of.
type ParseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse %s response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse %s response: %s", e.Provider, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
