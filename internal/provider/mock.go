package provider

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/scriptkit/aichat/internal/catalog"
)

// MockSlug is the provider slug Mock registers under. It never appears in
// the Credential Registry or Catalog; the Engine selects it directly when
// entering Mock Mode (spec §4.6 "Mock mode").
const MockSlug = "mock"

// mockModelID is the single synthetic model Mock exposes.
const mockModelID = "demo-mode"

// MockWordDelayMin/Max bound the per-word streaming delay (spec §8
// scenario 3: "30-60 ms inter-word delay").
const (
	MockWordDelayMin = 30 * time.Millisecond
	MockWordDelayMax = 60 * time.Millisecond
)

// keywordReplies are matched, in order, against the lowercased last user
// message. The first matching keyword wins; canned and deterministic by
// design — Mock mode must be indistinguishable from a real stream at the
// View contract (spec §4.6), not indistinguishable in CONTENT.
var keywordReplies = []struct {
	keyword string
	reply   string
}{
	{"hello", "Hello! I'm Script Kit's AI assistant running in demo mode. Add an API key to talk to a real model."},
	{"hi", "Hi there! I'm running in demo mode right now — no API key is configured for any provider."},
	{"help", "I'd love to help, but I'm currently in offline demo mode. Configure a provider API key to get real answers."},
	{"bug", "Demo mode can't debug real code, but once you configure a provider I can help track down that bug."},
	{"thanks", "You're welcome! This is a canned demo-mode reply — configure an API key for real conversations."},
}

// defaultReply is used when no keyword matches.
const defaultReply = "I'm running in offline demo mode since no provider API key was found. Set one of the SCRIPT_KIT_*_API_KEY environment variables to talk to a real model."

// MockProvider is a first-class Provider implementation — not a branch
// inside the Engine — so Mock Mode is testable against the same code path
// as real providers (spec §9 design note).
type MockProvider struct {
	// rng is injected so tests can make the inter-word delay
	// deterministic; a nil rng falls back to a fresh default source.
	rng *rand.Rand
}

// NewMockProvider creates a MockProvider with its own random source.
func NewMockProvider() *MockProvider {
	return &MockProvider{rng: rand.New(rand.NewPCG(1, 2))}
}

// Slug returns the provider identifier.
func (m *MockProvider) Slug() string { return MockSlug }

// DisplayName returns the human-readable provider name.
func (m *MockProvider) DisplayName() string { return "Demo Mode" }

// Models returns the single synthetic model Mock supports. It is
// deliberately absent from catalog.Models since it isn't a real,
// selectable backend — the Engine resolves Mock implicitly.
func (m *MockProvider) Models() []catalog.ModelInfo {
	return []catalog.ModelInfo{{
		ID:                mockModelID,
		DisplayName:       "Demo Mode",
		ProviderSlug:      MockSlug,
		SupportsStreaming: true,
		ContextWindow:     0,
	}}
}

// reply picks the canned response for the last user message in history.
func reply(history []Message) string {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			last = strings.ToLower(history[i].Content)
			break
		}
	}
	for _, kr := range keywordReplies {
		if strings.Contains(last, kr.keyword) {
			return kr.reply
		}
	}
	return defaultReply
}

// Send returns the full canned reply in one shot.
func (m *MockProvider) Send(ctx context.Context, history []Message, modelID string) (string, error) {
	return reply(history), nil
}

// Stream streams the canned reply word-by-word with a 30-60ms delay
// between words, honoring context cancellation between words so Abort
// (spec §4.6) takes effect promptly.
func (m *MockProvider) Stream(ctx context.Context, history []Message, modelID string, onChunk func(string)) error {
	words := strings.Fields(reply(history))

	for i, word := range words {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		onChunk(chunk)

		if i == len(words)-1 {
			break
		}

		span := int64(MockWordDelayMax - MockWordDelayMin)
		var jitter int64
		if m.rng != nil {
			jitter = m.rng.Int64N(span)
		} else {
			jitter = rand.Int64N(span)
		}
		delay := MockWordDelayMin + time.Duration(jitter)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

var _ Provider = (*MockProvider)(nil)
