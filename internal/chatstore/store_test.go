package chatstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ai-chats.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestChat() Chat {
	now := time.Now().UTC()
	return Chat{
		ID:         NewChatId(),
		Title:      DefaultTitle,
		CreatedAt:  now,
		UpdatedAt:  now,
		ModelID:    "gpt-4o",
		ProviderID: "openai",
	}
}

func TestCreateAndGetChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, got.ID)
	assert.Equal(t, chat.Title, got.Title)
	assert.True(t, got.IsLive())
}

func TestGetChat_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChat(context.Background(), NewChatId())
	assert.ErrorIs(t, err, ErrChatNotFound)
}

// TestChat_RoundTrip exercises P7: get_chat after
// create_chat+update_chat yields a structurally equal chat.
func TestChat_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	chat.Title = "Updated title"
	chat.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateChat(ctx, chat))

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated title", got.Title)
	assert.Equal(t, chat.ModelID, got.ModelID)
	assert.Equal(t, chat.ProviderID, got.ProviderID)
}

func TestUpdateTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	require.NoError(t, s.UpdateTitle(ctx, chat.ID, "Why is the sky blue?"))

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Why is the sky blue?", got.Title)
}

func TestListLive_OrderedByUpdatedAtDesc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := newTestChat()
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateChat(ctx, older))

	newer := newTestChat()
	newer.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.CreateChat(ctx, newer))

	chats, err := s.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID)
	assert.Equal(t, older.ID, chats[1].ID)
}

func TestSoftDeleteRestorePurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	require.NoError(t, s.SoftDelete(ctx, chat.ID))
	live, err := s.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	trash, err := s.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.False(t, trash[0].IsLive())

	require.NoError(t, s.Restore(ctx, chat.ID))
	live, err = s.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.True(t, live[0].IsLive())

	require.NoError(t, s.Purge(ctx, chat.ID))
	_, err = s.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestUpsertMessage_InsertThenIdempotentUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	tokens := uint32(12)
	msg := Message{
		ID:        "msg-1",
		ChatID:    chat.ID,
		Role:      RoleUser,
		Content:   "hello",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertMessage(ctx, msg, true))

	msg.Content = "hello again"
	msg.TokensUsed = &tokens
	require.NoError(t, s.UpsertMessage(ctx, msg, true))
	// P8: a repeated upsert of the same state is a no-op on store state.
	require.NoError(t, s.UpsertMessage(ctx, msg, true))

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello again", msgs[0].Content)
	require.NotNil(t, msgs[0].TokensUsed)
	assert.Equal(t, uint32(12), *msgs[0].TokensUsed)
}

func TestListMessages_AscendingOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	base := time.Now().UTC()
	require.NoError(t, s.UpsertMessage(ctx, Message{ID: "m1", ChatID: chat.ID, Role: RoleUser, Content: "first", CreatedAt: base}, false))
	require.NoError(t, s.UpsertMessage(ctx, Message{ID: "m2", ChatID: chat.ID, Role: RoleAssistant, Content: "second", CreatedAt: base}, false))

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertMessage(ctx, Message{
			ID:        "m" + string(rune('0'+i)),
			ChatID:    chat.ID,
			Role:      RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}, false))
	}

	recent, err := s.RecentMessages(ctx, chat.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].Content)
	assert.Equal(t, "e", recent[1].Content)
}

// TestSumTokens exercises P2: sum over non-null tokens_used, absence
// counted as zero.
func TestSumTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))

	t1 := uint32(10)
	t2 := uint32(20)
	require.NoError(t, s.UpsertMessage(ctx, Message{ID: "m1", ChatID: chat.ID, Role: RoleUser, Content: "a", CreatedAt: time.Now().UTC(), TokensUsed: &t1}, false))
	require.NoError(t, s.UpsertMessage(ctx, Message{ID: "m2", ChatID: chat.ID, Role: RoleAssistant, Content: "b", CreatedAt: time.Now().UTC(), TokensUsed: &t2}, false))
	require.NoError(t, s.UpsertMessage(ctx, Message{ID: "m3", ChatID: chat.ID, Role: RoleUser, Content: "c", CreatedAt: time.Now().UTC()}, false))

	sum, err := s.SumTokens(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), sum)
}

func TestCountLiveChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateChat(ctx, newTestChat()))
	deleted := newTestChat()
	require.NoError(t, s.CreateChat(ctx, deleted))
	require.NoError(t, s.SoftDelete(ctx, deleted.ID))

	count, err := s.CountLiveChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPurgeOldTrash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	require.NoError(t, s.CreateChat(ctx, chat))
	require.NoError(t, s.SoftDelete(ctx, chat.ID))

	old := time.Now().UTC().AddDate(0, 0, -90)
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET deleted_at = ? WHERE id = ?`, old.Format(timeLayout), chat.ID.String())
	require.NoError(t, err)

	n, err := s.PurgeOldTrash(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestSearch_BlankQueryBehavesAsListLive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateChat(ctx, newTestChat()))

	results, err := s.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_MatchesTitleAndMessageContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	about := newTestChat()
	about.Title = "Golang concurrency patterns"
	require.NoError(t, s.CreateChat(ctx, about))

	other := newTestChat()
	other.Title = "Weekend recipe ideas"
	require.NoError(t, s.CreateChat(ctx, other))
	require.NoError(t, s.UpsertMessage(ctx, Message{
		ID: "m1", ChatID: other.ID, Role: RoleAssistant, Content: "Goroutines are cheap to spawn.", CreatedAt: time.Now().UTC(),
	}, false))

	byTitle, err := s.Search(ctx, "concurrency")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, about.ID, byTitle[0].ID)

	byContent, err := s.Search(ctx, "goroutines")
	require.NoError(t, err)
	require.Len(t, byContent, 1)
	assert.Equal(t, other.ID, byContent[0].ID)
}

func TestSearch_ExcludesDeletedChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := newTestChat()
	chat.Title = "Rust ownership model"
	require.NoError(t, s.CreateChat(ctx, chat))
	require.NoError(t, s.SoftDelete(ctx, chat.ID))

	results, err := s.Search(ctx, "ownership")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGenerateTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"blank", "   \n  ", DefaultTitle},
		{"simple", "Hello\nWorld", "Hello"},
		{"long truncates", repeatRune('a', 80), repeatRune('a', 50) + "..."},
		{"exactly fifty", repeatRune('a', 50), repeatRune('a', 50)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, GenerateTitle(c.in))
		})
	}
}

func repeatRune(r rune, n int) string {
	out := make([]rune, n)
	for i := range out {
		out[i] = r
	}
	return string(out)
}
