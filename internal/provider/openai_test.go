package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, srv.Client())
	text, err := p.Send(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestOpenAIProvider_Send_MissingContentIsEmptyString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", srv.URL, srv.Client())
	text, err := p.Send(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestOpenAIProvider_Send_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"bad key"}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", srv.URL, srv.Client())
	_, err := p.Send(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o")
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrKindAuth, perr.Kind)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
}

func TestOpenAIProvider_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, ": keep-alive\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: not-json\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", srv.URL, srv.Client())

	var got string
	err := p.Stream(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o", func(chunk string) {
		got += chunk
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
}
