// Package providers defines the Provider interface and the upstream clients
// used to turn a system instruction plus a single user turn into generated
// text.
//
// Every implementation reports a non-2xx upstream answer as *APIError so the
// caller can surface the upstream status code and body. Transport failures
// are returned as ordinary wrapped errors.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// RoleUser is the role of the single turn sent upstream.
const RoleUser = "user"

// Provider defines the interface that all upstream generators implement.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn generation request.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Validate checks that the request carries everything an upstream needs.
func (r Request) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", r.MaxTokens)
	}
	return nil
}

// Response carries the extracted text of a generation. Text is empty when the
// upstream answered successfully but produced no text content.
type Response struct {
	ID    string
	Model string
	Text  string
	Usage Usage
}

// Usage carries token consumption reported by the upstream.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ErrEmptyContent reports a successful upstream answer that carried no text.
var ErrEmptyContent = errors.New("upstream returned no text content")

// APIError is returned when the upstream answers with a non-success status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether repeating the same request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AsAPIError unwraps err into an *APIError if it carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
