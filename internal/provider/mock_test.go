package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_Send(t *testing.T) {
	m := NewMockProvider()
	text, err := m.Send(context.Background(), []Message{{Role: "user", Content: "hello there"}}, mockModelID)
	require.NoError(t, err)
	assert.Contains(t, text, "demo mode")
}

func TestMockProvider_Reply_KeywordMatch(t *testing.T) {
	text := reply([]Message{{Role: "user", Content: "say HELLO please"}})
	assert.Equal(t, keywordReplies[0].reply, text)
}

func TestMockProvider_Reply_Default(t *testing.T) {
	text := reply([]Message{{Role: "user", Content: "xyzzy plugh"}})
	assert.Equal(t, defaultReply, text)
}

// TestMockProvider_Stream_StrictlyGrowingPrefix verifies spec §8 scenario 3:
// each emitted chunk extends the accumulated text as a strict prefix
// extension — no chunk ever causes the accumulated string to shrink or be
// rewritten, only appended to.
func TestMockProvider_Stream_StrictlyGrowingPrefix(t *testing.T) {
	m := NewMockProvider()

	var accumulated string
	var snapshots []string
	err := m.Stream(context.Background(), []Message{{Role: "user", Content: "hello"}}, mockModelID, func(chunk string) {
		accumulated += chunk
		snapshots = append(snapshots, accumulated)
	})
	require.NoError(t, err)

	require.NotEmpty(t, snapshots)
	for i := 1; i < len(snapshots); i++ {
		assert.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]),
			"snapshot %d (%q) is not a prefix extension of snapshot %d (%q)", i, snapshots[i], i-1, snapshots[i-1])
	}
	assert.Equal(t, keywordReplies[0].reply, accumulated)
}

func TestMockProvider_Stream_ContextCancellation(t *testing.T) {
	m := NewMockProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := m.Stream(ctx, []Message{{Role: "user", Content: "hello, a fairly long message to get multiple words"}}, mockModelID, func(chunk string) {
		calls++
	})
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestMockProvider_Models(t *testing.T) {
	m := NewMockProvider()
	models := m.Models()
	require.Len(t, models, 1)
	assert.Equal(t, mockModelID, models[0].ID)
	assert.Equal(t, MockSlug, models[0].ProviderSlug)
}
