// Package catalog holds the static, compile-time table of LLM models the
// gateway knows how to talk to. It is the sole authority for presenting
// model options to the View; unknown models stored on historical chats
// display as-is but cannot be selected for new turns.
package catalog

import "github.com/scriptkit/aichat/internal/credential"

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID               string
	DisplayName      string
	ProviderSlug     string
	SupportsStreaming bool
	ContextWindow    int
}

// Models is the full static catalog, grouped by provider family.
var Models = []ModelInfo{
	{ID: "gpt-4o", DisplayName: "GPT-4o", ProviderSlug: credential.SlugOpenAI, SupportsStreaming: true, ContextWindow: 128_000},
	{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", ProviderSlug: credential.SlugOpenAI, SupportsStreaming: true, ContextWindow: 128_000},

	{ID: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet", ProviderSlug: credential.SlugAnthropic, SupportsStreaming: true, ContextWindow: 200_000},
	{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", ProviderSlug: credential.SlugAnthropic, SupportsStreaming: true, ContextWindow: 200_000},

	{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", ProviderSlug: credential.SlugGoogle, SupportsStreaming: true, ContextWindow: 1_000_000},
	{ID: "gemini-2.0-pro", DisplayName: "Gemini 2.0 Pro", ProviderSlug: credential.SlugGoogle, SupportsStreaming: true, ContextWindow: 2_000_000},

	{ID: "llama-3.3-70b-versatile", DisplayName: "Llama 3.3 70B (Groq)", ProviderSlug: credential.SlugGroq, SupportsStreaming: true, ContextWindow: 128_000},
	{ID: "mixtral-8x7b-32768", DisplayName: "Mixtral 8x7B (Groq)", ProviderSlug: credential.SlugGroq, SupportsStreaming: true, ContextWindow: 32_768},

	{ID: "openrouter/auto", DisplayName: "OpenRouter Auto", ProviderSlug: credential.SlugOpenRouter, SupportsStreaming: true, ContextWindow: 128_000},
}

// ByID looks up a model by its id. ok is false if the model is not in the
// catalog (stale bindings on historical chats will miss here).
func ByID(id string) (ModelInfo, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ByProvider returns every catalog entry for the given provider slug, in
// catalog order.
func ByProvider(slug string) []ModelInfo {
	var out []ModelInfo
	for _, m := range Models {
		if m.ProviderSlug == slug {
			out = append(out, m)
		}
	}
	return out
}
