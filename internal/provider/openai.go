package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/scriptkit/aichat/internal/catalog"
	"github.com/scriptkit/aichat/internal/credential"
)

// ---------------------------------------------------------------------------
// OpenAIProvider struct + constructor
// ---------------------------------------------------------------------------

// defaultOpenAIBaseURL is used when the caller doesn't override it. A
// configurable base URL lets the same adapter serve any OpenAI-compatible
// endpoint (Groq, OpenRouter, local proxies) — see stub.go.
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements the Provider interface for OpenAI's
// /v1/chat/completions dialect (spec §4.4.1). It is also the adapter
// reused, with a different slug/display name/base URL, by the stub
// OpenAI-compatible families (Google, Groq, OpenRouter) per spec §4.4.
type OpenAIProvider struct {
	slug        string
	displayName string
	apiKey      string
	baseURL     string // e.g. "https://api.openai.com/v1"; "/chat/completions" is always appended, so an override replaces the API root, not the full endpoint URL
	client      *http.Client
}

// NewOpenAIProvider creates an OpenAIProvider ready to make API calls. An
// empty baseURL falls back to the default OpenAI endpoint.
func NewOpenAIProvider(apiKey, baseURL string, client *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		slug:        credential.SlugOpenAI,
		displayName: "OpenAI",
		apiKey:      apiKey,
		baseURL:     baseURL,
		client:      client,
	}
}

// Slug returns the provider identifier.
func (o *OpenAIProvider) Slug() string { return o.slug }

// DisplayName returns the human-readable provider name.
func (o *OpenAIProvider) DisplayName() string { return o.displayName }

// Models returns the catalog entries bound to this provider's slug.
func (o *OpenAIProvider) Models() []catalog.ModelInfo {
	return catalog.ByProvider(o.slug)
}

// ---------------------------------------------------------------------------
// OpenAI API types (unexported)
// ---------------------------------------------------------------------------

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []openAIMessage `json:"messages"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

type openAIStreamDelta struct {
	Content *string `json:"content"`
}

type openAIStreamChoice struct {
	Delta openAIStreamDelta `json:"delta"`
}

type openAIStreamEvent struct {
	Choices []openAIStreamChoice `json:"choices"`
}

// toOpenAIMessages forwards history verbatim, including any "system"
// entries inline at the positions they appear (spec §4.4.1).
func toOpenAIMessages(history []Message) []openAIMessage {
	out := make([]openAIMessage, len(history))
	for i, m := range history {
		out[i] = openAIMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// ---------------------------------------------------------------------------
// Non-streaming: Send
// ---------------------------------------------------------------------------

// Send sends a non-streaming request to the chat completions endpoint and
// returns choices[0].message.content, or an empty string if missing/null.
func (o *OpenAIProvider) Send(ctx context.Context, history []Message, modelID string) (string, error) {
	reqBody := openAIRequest{
		Model:    modelID,
		Stream:   false,
		Messages: toOpenAIMessages(history),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := o.baseURL + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	httpResp, err := o.client.Do(httpReq)
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

	var resp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", &ProviderError{Kind: ErrKindDecode, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ---------------------------------------------------------------------------
// Streaming: Stream
// ---------------------------------------------------------------------------

// Stream sends a streaming request and invokes onChunk for every non-empty
// text delta, in wire order, per spec §4.4.1/§4.4.3:
//   - lines not starting with "data: " are skipped
//   - "data: [DONE]" ends the stream cleanly
//   - otherwise JSON-parse the suffix and emit choices[0].delta.content
//     if present and non-null
//   - malformed frames are silently dropped (no callback, no error)
func (o *OpenAIProvider) Stream(ctx context.Context, history []Message, modelID string, onChunk func(string)) error {
	reqBody := openAIRequest{
		Model:    modelID,
		Stream:   true,
		Messages: toOpenAIMessages(history),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := o.baseURL + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	httpResp, err := o.client.Do(httpReq)
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
	// SSE payloads can carry long tool-call arguments in other dialects;
	// give the scanner generous headroom even though our text-only lines
	// are normally small.
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

		var event openAIStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Malformed frames are silently dropped per spec §4.4.3.
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}
		delta := event.Choices[0].Delta.Content
		if delta == nil || *delta == "" {
			continue
		}
		onChunk(*delta)
	}

	if err := scanner.Err(); err != nil {
		return &ProviderError{Kind: ErrKindTransport, Err: err}
	}
	return nil
}

// NewHTTPClient builds the *http.Client every adapter shares, matching
// spec §4.4.4's connect/read timeout policy. connectTimeout is applied via
// the transport's dial timeout; readTimeout bounds the whole round trip
// (streaming responses included) via the client's Timeout.
//
// A single idle-chunk timeout (spec §4.6) is NOT enforced here — that is
// the Engine's responsibility, since it must reset on every chunk, not
// just once per request.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   readTimeout,
	}
}
