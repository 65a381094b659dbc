package providers

import (
	"net/http"
	"strings"
	"time"
)

// Options carries the settings shared by every provider constructor. Fields a
// provider does not use are ignored.
type Options struct {
	APIKey  string
	BaseURL string
	// Region selects the AWS region for Bedrock.
	Region string
	// SecretKey pairs with APIKey when it holds an AWS access key id.
	SecretKey string
	// Timeout bounds a single upstream call. Zero means no client timeout.
	Timeout time.Duration
}

// Base provides common fields and methods shared by REST-based provider
// implementations. Embed this struct to avoid repeating name, apiKey, and
// baseURL handling across providers.
type Base struct {
	name    string
	apiKey  string
	baseURL string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider base URL.
func (b *Base) BaseURL() string { return b.baseURL }

func newBase(name, apiKey, baseURL, fallback string) Base {
	if baseURL == "" {
		baseURL = fallback
	}
	return Base{name: name, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
