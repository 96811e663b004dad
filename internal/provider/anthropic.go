package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/scriptkit/aichat/internal/catalog"
	"github.com/scriptkit/aichat/internal/credential"
)

// ---------------------------------------------------------------------------
// AnthropicProvider struct + constructor
// ---------------------------------------------------------------------------

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1"

// anthropicAPIVersion pins the Anthropic API behavior. Anthropic requires
// this header on every request, date-versioned instead of path-versioned.
const anthropicAPIVersion = "2023-06-01"

// anthropicMaxTokens is always set per spec §4.4.2 — Anthropic rejects
// requests without it, and the spec fixes the value rather than deriving
// it from the caller.
const anthropicMaxTokens = 4096

// AnthropicProvider implements the Provider interface for Anthropic's
// Messages API (spec §4.4.2).
type AnthropicProvider struct {
	apiKey  string
	baseURL string // e.g. "https://api.anthropic.com/v1"
	client  *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API calls.
func NewAnthropicProvider(apiKey, baseURL string, client *http.Client) *AnthropicProvider {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Slug returns the provider identifier.
func (a *AnthropicProvider) Slug() string { return credential.SlugAnthropic }

// DisplayName returns the human-readable provider name.
func (a *AnthropicProvider) DisplayName() string { return "Anthropic" }

// Models returns the catalog entries bound to Anthropic.
func (a *AnthropicProvider) Models() []catalog.ModelInfo {
	return catalog.ByProvider(credential.SlugAnthropic)
}

// ---------------------------------------------------------------------------
// Anthropic API types (unexported)
// ---------------------------------------------------------------------------

// anthropicRequest is the top-level request body for /v1/messages.
//
// Key differences from the OpenAI dialect:
//   - "system" is a top-level string, not inline in messages
//   - "max_tokens" is REQUIRED
//   - streaming uses named events, not a uniform payload shape
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

// anthropicStreamEvent is a lightweight wrapper used to decode every named
// SSE event; only the fields relevant to its "type" are populated, the
// rest stay zero-valued.
type anthropicStreamEvent struct {
	Type  string               `json:"type"`
	Delta *anthropicEventDelta `json:"delta,omitempty"`
}

type anthropicEventDelta struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// toAnthropicRequest translates unified history into Anthropic's format.
//
// Spec §9's Open Question is fixed here: only the FIRST system-role item
// is extracted into the top-level "system" field; any later system
// messages are filtered out of the forwarded list and dropped entirely
// (not concatenated). Callers who want multi-system support must
// concatenate themselves before calling Send/Stream.
func toAnthropicRequest(history []Message, modelID string) *anthropicRequest {
	ar := &anthropicRequest{
		Model:     modelID,
		MaxTokens: anthropicMaxTokens,
	}

	sawSystem := false
	for _, msg := range history {
		if msg.Role == "system" {
			if !sawSystem {
				ar.System = msg.Content
				sawSystem = true
			}
			continue
		}
		ar.Messages = append(ar.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return ar
}

// ---------------------------------------------------------------------------
// Non-streaming: Send
// ---------------------------------------------------------------------------

// Send sends a non-streaming request to /v1/messages and returns
// content[0].text.
func (a *AnthropicProvider) Send(ctx context.Context, history []Message, modelID string) (string, error) {
	anthropicReq := toAnthropicRequest(history, modelID)

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := a.baseURL + "/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Kind: ErrKindTransport, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, bodySnippetLimit))
		return "", &ProviderError{
			Kind:        httpErrorKind(httpResp.StatusCode),
			Status:      httpResp.StatusCode,
			BodySnippet: truncateSnippet(string(snippet)),
		}
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthropicResp); err != nil {
		return "", &ProviderError{Kind: ErrKindDecode, Err: err}
	}

	var text string
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return text, nil
}

// ---------------------------------------------------------------------------
// Streaming: Stream
// ---------------------------------------------------------------------------

// Stream sends a streaming request to /v1/messages and invokes onChunk for
// every content_block_delta/text_delta event, per spec §4.4.2/§4.4.3:
// all other event types (message_start, message_delta, ping, message_stop,
// content_block_start/stop) are ignored. "data: [DONE]" and non-data
// lines end/skip exactly as in the OpenAI dialect. Malformed frames are
// silently dropped.
func (a *AnthropicProvider) Stream(ctx context.Context, history []Message, modelID string, onChunk func(string)) error {
	anthropicReq := toAnthropicRequest(history, modelID)
	anthropicReq.Stream = true

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := a.baseURL + "/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return &ProviderError{Kind: ErrKindTransport, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, bodySnippetLimit))
		return &ProviderError{
			Kind:        httpErrorKind(httpResp.StatusCode),
			Status:      httpResp.StatusCode,
			BodySnippet: truncateSnippet(string(snippet)),
		}
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		payload, ok := isDataLine(line)
		if !ok {
			continue
		}
		if isDoneSentinel(payload) {
			return nil
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Malformed frames are silently dropped per spec §4.4.3.
			continue
		}

		if event.Type != "content_block_delta" {
			continue
		}
		if event.Delta == nil || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			continue
		}
		onChunk(event.Delta.Text)
	}

	if err := scanner.Err(); err != nil {
		return &ProviderError{Kind: ErrKindTransport, Err: err}
	}
	return nil
}
