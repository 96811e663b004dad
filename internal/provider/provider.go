// Package provider defines the Provider interface and LLM provider adapters.
//
// Every LLM backend (OpenAI, Anthropic, Google, Groq, OpenRouter, Mock)
// implements the Provider interface. The rest of the engine works only
// with these unified types — it never needs to know which vendor dialect
// is actually handling a request.
package provider

import (
	"context"
	"fmt"

	"github.com/scriptkit/aichat/internal/catalog"
)

// Message is one turn in a conversation handed to a Provider. Role is one
// of "user", "assistant", "system". Unlike the teacher's ChatRequest
// envelope, history travels as a plain slice — the spec's Provider
// Interface carries no request-level knobs beyond history and model id.
type Message struct {
	Role    string
	Content string
}

// Provider is the interface that every LLM backend must satisfy. Go
// interfaces are implicit: any struct with these methods automatically
// implements Provider — no "implements" keyword needed.
type Provider interface {
	// Slug returns the stable provider identifier, unique per provider,
	// e.g. "openai" or "anthropic". Used for logging and registry lookup.
	Slug() string

	// DisplayName returns a human-readable name for the View.
	DisplayName() string

	// Models returns the finite ordered sequence of models this provider
	// exposes, sourced from the catalog.
	Models() []catalog.ModelInfo

	// Send sends a non-empty history to modelID and returns the full
	// assistant text. An empty string is a valid, successful response —
	// callers must treat it as a null turn, not an error.
	Send(ctx context.Context, history []Message, modelID string) (string, error)

	// Stream sends history to modelID and invokes onChunk sequentially
	// with UTF-8 text deltas, in the order the server sent them. It
	// returns once the stream closes cleanly, or a non-nil error if the
	// transport or decode fails. Deltas already delivered via onChunk are
	// not rewound on error.
	Stream(ctx context.Context, history []Message, modelID string, onChunk func(string)) error
}

// Usage holds token count information, when a provider reports it. No
// adapter in this package fills it in: Send returns only the assistant
// text and Stream only text deltas, so server-reported token counts do not
// reach the engine's tokens_used field.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrorKind classifies a ProviderError per spec §7's error table.
type ErrorKind int

const (
	ErrKindTransport ErrorKind = iota
	ErrKindHTTP
	ErrKindDecode
	ErrKindAuth
	ErrKindRateLimited
	ErrKindIdleTimeout
)

// ProviderError is returned by Send/Stream for every failure category
// named in spec §7. Status and BodySnippet are populated only for
// ErrKindHTTP/ErrKindAuth/ErrKindRateLimited. API secrets are never
// included here — adapters build BodySnippet from the response body only.
type ProviderError struct {
	Kind        ErrorKind
	Status      int
	BodySnippet string
	Err         error
}

func (e *ProviderError) Error() string {
	switch e.Kind {
	case ErrKindHTTP, ErrKindAuth, ErrKindRateLimited:
		return fmt.Sprintf("provider http error (status %d): %s", e.Status, e.BodySnippet)
	case ErrKindIdleTimeout:
		return "provider idle timeout: no chunk received in time"
	case ErrKindDecode:
		return fmt.Sprintf("provider decode error: %v", e.Err)
	default:
		return fmt.Sprintf("provider transport error: %v", e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// bodySnippetLimit bounds how much of an untrusted upstream error body we
// carry and surface to the View.
const bodySnippetLimit = 512

func truncateSnippet(s string) string {
	if len(s) <= bodySnippetLimit {
		return s
	}
	return s[:bodySnippetLimit]
}

func httpErrorKind(status int) ErrorKind {
	switch status {
	case 401, 403:
		return ErrKindAuth
	case 429:
		return ErrKindRateLimited
	default:
		return ErrKindHTTP
	}
}
