package provider

import (
	"net/http"

	"github.com/scriptkit/aichat/internal/catalog"
	"github.com/scriptkit/aichat/internal/credential"
)

// This file holds the stub third family named in spec §4.4: Google, Groq,
// and OpenRouter. Rather than reimplementing each vendor's native dialect
// (Gemini's nested "parts"/"contents" shape, in Google's case — the
// teacher's original approach, dropped here per DESIGN.md), each wraps the
// already-specified OpenAI-dialect adapter with its own slug, display
// name, and base URL, exactly as spec §4.4 permits ("may reuse an
// OpenAI-compatible request shape").

const (
	defaultGoogleBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// compatProvider adapts OpenAIProvider's request/response shape under a
// different provider identity. It embeds *OpenAIProvider so Send/Stream
// are inherited unchanged; only Slug/DisplayName/Models are overridden.
type compatProvider struct {
	*OpenAIProvider
	slug        string
	displayName string
}

func (c *compatProvider) Slug() string        { return c.slug }
func (c *compatProvider) DisplayName() string { return c.displayName }
func (c *compatProvider) Models() []catalog.ModelInfo {
	return catalog.ByProvider(c.slug)
}

// NewGoogleProvider creates a Provider for Google's OpenAI-compatible
// endpoint.
func NewGoogleProvider(apiKey, baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &compatProvider{
		OpenAIProvider: NewOpenAIProvider(apiKey, baseURL, client),
		slug:           credential.SlugGoogle,
		displayName:    "Google",
	}
}

// NewGroqProvider creates a Provider for Groq's OpenAI-compatible endpoint.
func NewGroqProvider(apiKey, baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	return &compatProvider{
		OpenAIProvider: NewOpenAIProvider(apiKey, baseURL, client),
		slug:           credential.SlugGroq,
		displayName:    "Groq",
	}
}

// NewOpenRouterProvider creates a Provider for OpenRouter's
// OpenAI-compatible endpoint.
func NewOpenRouterProvider(apiKey, baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &compatProvider{
		OpenAIProvider: NewOpenAIProvider(apiKey, baseURL, client),
		slug:           credential.SlugOpenRouter,
		displayName:    "OpenRouter",
	}
}

var _ Provider = (*compatProvider)(nil)
