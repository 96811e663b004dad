// Package credential discovers per-provider LLM API keys from the process
// environment at startup. Secrets never leave this package as anything
// other than an opaque value handed to the provider that owns it — they
// are never logged, never compared by content, and never included in
// error messages.
package credential

import "os"

// Slugs for every provider family the Credential Registry recognizes.
const (
	SlugOpenAI     = "openai"
	SlugAnthropic  = "anthropic"
	SlugGoogle     = "google"
	SlugGroq       = "groq"
	SlugOpenRouter = "openrouter"
)

// envVars maps each provider slug to the exact environment variable name
// spec'd for it. Order doesn't matter; this is the single source of truth
// for "recognized variables".
var envVars = map[string]string{
	SlugOpenAI:     "SCRIPT_KIT_OPENAI_API_KEY",
	SlugAnthropic:  "SCRIPT_KIT_ANTHROPIC_API_KEY",
	SlugGoogle:     "SCRIPT_KIT_GOOGLE_API_KEY",
	SlugGroq:       "SCRIPT_KIT_GROQ_API_KEY",
	SlugOpenRouter: "SCRIPT_KIT_OPENROUTER_API_KEY",
}

// Registry holds the subset of provider secrets discovered at construction
// time. It is immutable after FromEnvironment returns; rotation means
// reconstructing a new Registry and rewiring the Engine.
//
// Deliberately does not implement fmt.Stringer or expose the underlying
// map — printing a Registry with %v would otherwise risk leaking a key
// into logs.
type Registry struct {
	secrets map[string]string
}

// FromEnvironment builds a Registry by reading the recognized variables
// from the process environment. Empty strings are treated as absent.
func FromEnvironment() *Registry {
	r := &Registry{secrets: make(map[string]string, len(envVars))}
	for slug, name := range envVars {
		if v := os.Getenv(name); v != "" {
			r.secrets[slug] = v
		}
	}
	return r
}

// Get returns the secret for slug, if any provider with that name has a
// configured key.
func (r *Registry) Get(slug string) (string, bool) {
	v, ok := r.secrets[slug]
	return v, ok
}

// HasAny reports whether at least one provider has a configured secret.
func (r *Registry) HasAny() bool {
	return len(r.secrets) > 0
}

// AvailableSlugs returns the set of provider slugs with a configured
// secret, in no particular order.
func (r *Registry) AvailableSlugs() []string {
	out := make([]string, 0, len(r.secrets))
	for slug := range r.secrets {
		out = append(out, slug)
	}
	return out
}
