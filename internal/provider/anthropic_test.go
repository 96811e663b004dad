package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAnthropicRequest_FirstSystemOnlyWins(t *testing.T) {
	history := []Message{
		{Role: "system", Content: "Be terse."},
		{Role: "user", Content: "Why sky blue?"},
		{Role: "system", Content: "Ignore this one."},
	}

	req := toAnthropicRequest(history, "claude-3-5-sonnet-20241022")

	assert.Equal(t, "Be terse.", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "Why sky blue?", req.Messages[0].Content)
	assert.Equal(t, anthropicMaxTokens, req.MaxTokens)
}

func TestToAnthropicRequest_NoSystem(t *testing.T) {
	history := []Message{{Role: "user", Content: "Hi"}}
	req := toAnthropicRequest(history, "claude-3-5-sonnet-20241022")
	assert.Empty(t, req.System)
}

func TestAnthropicProvider_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Be terse.", req.System)
		assert.Equal(t, []anthropicMessage{{Role: "user", Content: "Why sky blue?"}}, req.Messages)

		fmt.Fprint(w, `{"content":[{"type":"text","text":"Short answer."}]}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, srv.Client())
	history := []Message{
		{Role: "system", Content: "Be terse."},
		{Role: "user", Content: "Why sky blue?"},
	}
	text, err := p.Send(context.Background(), history, "claude-3-5-sonnet-20241022")
	require.NoError(t, err)
	assert.Equal(t, "Short answer.", text)
}

func TestAnthropicProvider_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		events := []string{
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Short "}}`,
			`{"type":"ping"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"answer."}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, srv.Client())

	var got string
	err := p.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, "claude-3-5-sonnet-20241022", func(chunk string) {
		got += chunk
	})
	require.NoError(t, err)
	assert.Equal(t, "Short answer.", got)
}
