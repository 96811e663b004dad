// Package engine implements the Streaming Session Engine: the coordinator
// that owns a single in-flight assistant turn per chat, drives the
// background-worker-to-buffer chunk pump (spec §4.6), and persists user
// and assistant messages through the Conversation Store at the right
// points in the submit protocol.
//
// Streaming handoff follows the mutex-guarded-buffer design named in spec
// §9: a background goroutine performs the blocking provider call and
// appends deltas into a session-scoped, mutex-protected buffer; View()
// plays the role of the cooperative UI poller, snapshotting that buffer
// whenever it is called.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scriptkit/aichat/internal/catalog"
	"github.com/scriptkit/aichat/internal/chatstore"
	"github.com/scriptkit/aichat/internal/clock"
	"github.com/scriptkit/aichat/internal/credential"
	"github.com/scriptkit/aichat/internal/provider"
)

// defaultIdleTimeout is the time without an observed chunk before an
// active stream is treated as errored (spec §4.6).
const defaultIdleTimeout = 60 * time.Second

// Options configures an Engine's timing behavior. Zero values fall back to
// spec defaults.
type Options struct {
	IdleTimeout time.Duration
}

// streamSession is the mutable state of a single in-flight streaming
// turn. It is created fresh per Submit and discarded at finalize; a stale
// session's late writes are never observed because Engine only reads
// through activeSession, which Abort/finalize replace atomically.
type streamSession struct {
	mu     sync.Mutex
	buffer strings.Builder
	cancel context.CancelFunc
}

func (s *streamSession) append(chunk string) {
	s.mu.Lock()
	s.buffer.WriteString(chunk)
	s.mu.Unlock()
}

func (s *streamSession) snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

// Engine coordinates the Conversation Store, the Credential Registry, and
// the set of constructed Providers into the single-active-session
// streaming contract of spec §4.6.
type Engine struct {
	store     *chatstore.Store
	registry  *credential.Registry
	providers map[string]provider.Provider
	clk       clock.Clock
	log       zerolog.Logger

	idleTimeout time.Duration

	mu              sync.Mutex
	chatsCache      []chatstore.Chat
	currentChat     *chatstore.Chat
	currentMessages []chatstore.Message
	isStreaming     bool
	activeSession   *streamSession
	streamingChatID *chatstore.ChatId
	selectedModel   *catalog.ModelInfo
	searchResults   []chatstore.Chat
	lastErr         error
}

// NewEngine constructs an Engine and loads the initial live-chats cache.
// providers should be keyed by provider slug (credential.SlugOpenAI etc.)
// plus provider.MockSlug for the offline fallback.
func NewEngine(ctx context.Context, store *chatstore.Store, registry *credential.Registry, providers map[string]provider.Provider, clk clock.Clock, opts Options) (*Engine, error) {
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}

	e := &Engine{
		store:       store,
		registry:    registry,
		providers:   providers,
		clk:         clk,
		log:         log.With().Str("component", "engine").Logger(),
		idleTimeout: idleTimeout,
	}

	chats, err := store.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading initial chat list: %w", err)
	}
	e.chatsCache = chats

	return e, nil
}

// ─── Submit protocol (spec §4.6) ───

// Submit implements the 12-step submit protocol. A blank text is a no-op
// returning nil; an already-active stream is refused with ErrBusy.
func (e *Engine) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	e.mu.Lock()
	if e.isStreaming {
		e.mu.Unlock()
		return ErrBusy
	}
	// Reserve the single-active-session slot immediately so concurrent
	// Submit calls cannot both pass this gate (I1).
	e.isStreaming = true

	chat := e.currentChat
	isNewChat := chat == nil
	if isNewChat {
		created := e.newChatLocked()
		chat = &created
	}
	e.mu.Unlock()

	if isNewChat {
		if err := e.store.CreateChat(ctx, *chat); err != nil {
			e.clearStreamingFlag()
			return fmt.Errorf("creating chat: %w", err)
		}
	}

	// Step 4: persist the user message before any provider call (I4).
	userMsg := chatstore.Message{
		ID:        ulid.Make().String(),
		ChatID:    chat.ID,
		Role:      chatstore.RoleUser,
		Content:   text,
		CreatedAt: e.clk.Now(),
	}
	if err := e.store.UpsertMessage(ctx, userMsg, true); err != nil {
		e.clearStreamingFlag()
		return fmt.Errorf("persisting user message: %w", err)
	}

	// Step 5: I5 — title assignment, only while still default.
	if chat.Title == chatstore.DefaultTitle {
		if title := chatstore.GenerateTitle(text); title != chatstore.DefaultTitle {
			if err := e.store.UpdateTitle(ctx, chat.ID, title); err != nil {
				e.log.Error().Err(err).Str("chat_id", chat.ID.String()).Msg("failed to persist derived title")
			} else {
				chat.Title = title
			}
		}
	}

	// Step 6: append to current_messages (I2 — tail-only).
	e.mu.Lock()
	e.currentChat = chat
	e.currentMessages = append(e.currentMessages, userMsg)
	e.mu.Unlock()

	e.refreshChats(ctx)

	// Step 7: resolve the Provider.
	prov, err := e.resolveProviderFor(*chat)
	if err != nil {
		e.clearStreamingFlag()
		return err
	}

	// Step 8: build provider history from the full current sequence.
	e.mu.Lock()
	history := historyFromMessages(e.currentMessages)
	e.mu.Unlock()

	// Steps 9-10: mark streaming, dispatch the worker.
	sess := &streamSession{}
	streamCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	e.mu.Lock()
	e.activeSession = sess
	chatID := chat.ID
	e.streamingChatID = &chatID
	e.mu.Unlock()

	go e.runStream(streamCtx, sess, prov, *chat, history)

	return nil
}

func (e *Engine) clearStreamingFlag() {
	e.mu.Lock()
	e.isStreaming = false
	e.mu.Unlock()
}

// newChatLocked builds a new, not-yet-persisted Chat bound to the
// currently selected model. Callers must hold e.mu.
func (e *Engine) newChatLocked() chatstore.Chat {
	now := e.clk.Now()
	var modelID, providerID string
	if e.selectedModel != nil {
		modelID = e.selectedModel.ID
		providerID = e.selectedModel.ProviderSlug
	}
	return chatstore.Chat{
		ID:         chatstore.NewChatId(),
		Title:      chatstore.DefaultTitle,
		CreatedAt:  now,
		UpdatedAt:  now,
		ModelID:    modelID,
		ProviderID: providerID,
	}
}

// resolveProviderFor implements submit protocol step 7: resolve via the
// chat's model_id; if unresolved and the Registry is empty, fall back to
// Mock Mode; if unresolved otherwise, fail.
func (e *Engine) resolveProviderFor(chat chatstore.Chat) (provider.Provider, error) {
	if info, ok := catalog.ByID(chat.ModelID); ok {
		if p, ok := e.providers[info.ProviderSlug]; ok {
			return p, nil
		}
	}
	if !e.registry.HasAny() {
		if mock, ok := e.providers[provider.MockSlug]; ok {
			return mock, nil
		}
	}
	return nil, ErrModelUnknown
}

func historyFromMessages(msgs []chatstore.Message) []provider.Message {
	history := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		history[i] = provider.Message{Role: string(m.Role), Content: m.Content}
	}
	return history
}

// ─── Background worker + finalize (I3) ───

// runStream drives a single provider.Stream call on a dedicated worker
// goroutine, restarting an idle timer on every observed chunk, and
// forwards the terminal outcome to finalize.
func (e *Engine) runStream(ctx context.Context, sess *streamSession, prov provider.Provider, chat chatstore.Chat, history []provider.Message) {
	chunkSeen := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		err := prov.Stream(ctx, history, chat.ModelID, func(chunk string) {
			sess.append(chunk)
			select {
			case chunkSeen <- struct{}{}:
			default:
			}
		})
		done <- err
	}()

	idleTimer := time.NewTimer(e.idleTimeout)
	defer idleTimer.Stop()

	var streamErr error
loop:
	for {
		select {
		case err := <-done:
			streamErr = err
			break loop
		case <-chunkSeen:
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(e.idleTimeout)
		case <-idleTimer.C:
			streamErr = &provider.ProviderError{Kind: provider.ErrKindIdleTimeout}
			sess.cancel()
			<-done // wait for the worker to actually exit before finalizing
			break loop
		}
	}

	e.finalize(sess, chat, streamErr)
}

// finalize implements I3: on clean completion with non-empty accumulated
// content, persist exactly one assistant message and append it; on error
// or empty accumulation, persist nothing. Either way streaming_buffer is
// cleared and is_streaming transitions to false. A session-id guard
// (comparing against the current activeSession) discards the outcome of a
// stale worker whose session has already been aborted or superseded.
func (e *Engine) finalize(sess *streamSession, chat chatstore.Chat, streamErr error) {
	e.mu.Lock()
	if e.activeSession != sess {
		e.mu.Unlock()
		return
	}
	content := sess.snapshot()
	e.isStreaming = false
	e.activeSession = nil
	e.streamingChatID = nil
	if streamErr != nil {
		e.lastErr = streamErr
	}
	e.mu.Unlock()

	if streamErr != nil || content == "" {
		return
	}

	asstMsg := chatstore.Message{
		ID:        ulid.Make().String(),
		ChatID:    chat.ID,
		Role:      chatstore.RoleAssistant,
		Content:   content,
		CreatedAt: e.clk.Now(),
	}
	if err := e.store.UpsertMessage(context.Background(), asstMsg, true); err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.currentChat != nil && e.currentChat.ID == chat.ID {
		e.currentMessages = append(e.currentMessages, asstMsg)
	}
	e.mu.Unlock()

	e.refreshChats(context.Background())
}

// Abort cancels the active stream, if any. The view flips to
// non-streaming immediately; the worker goroutine exits asynchronously and
// its eventual finalize call is discarded by the session-id guard. Abort
// is idempotent.
func (e *Engine) Abort() {
	e.mu.Lock()
	sess := e.activeSession
	if sess == nil {
		e.mu.Unlock()
		return
	}
	e.activeSession = nil
	e.isStreaming = false
	e.streamingChatID = nil
	e.mu.Unlock()

	sess.cancel()
}

// ─── View commands (spec §4.7) ───

// SelectChat loads a chat's messages into the view. It never aborts a
// foreign in-flight stream (I1); View() only surfaces streaming state for
// the chat that owns the active session.
func (e *Engine) SelectChat(ctx context.Context, id chatstore.ChatId) error {
	chat, err := e.store.GetChat(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := e.store.ListMessages(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.currentChat = &chat
	e.currentMessages = msgs
	e.mu.Unlock()
	return nil
}

// CreateChat persists a new, empty chat bound to the currently selected
// model and makes it the current chat.
func (e *Engine) CreateChat(ctx context.Context) (chatstore.ChatId, error) {
	e.mu.Lock()
	chat := e.newChatLocked()
	e.mu.Unlock()

	if err := e.store.CreateChat(ctx, chat); err != nil {
		return chatstore.ChatId{}, fmt.Errorf("creating chat: %w", err)
	}

	e.mu.Lock()
	e.currentChat = &chat
	e.currentMessages = nil
	e.mu.Unlock()

	e.refreshChats(ctx)
	return chat.ID, nil
}

// DeleteChat soft-deletes a chat. If it was the selected chat, the
// selection is cleared.
func (e *Engine) DeleteChat(ctx context.Context, id chatstore.ChatId) error {
	if err := e.store.SoftDelete(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	if e.currentChat != nil && e.currentChat.ID == id {
		e.currentChat = nil
		e.currentMessages = nil
	}
	e.mu.Unlock()

	e.refreshChats(ctx)
	return nil
}

// RestoreChat clears a chat's trash state.
func (e *Engine) RestoreChat(ctx context.Context, id chatstore.ChatId) error {
	if err := e.store.Restore(ctx, id); err != nil {
		return err
	}
	e.refreshChats(ctx)
	return nil
}

// SetModel selects a model by id for future new chats.
func (e *Engine) SetModel(modelID string) error {
	info, ok := catalog.ByID(modelID)
	if !ok {
		return ErrModelUnknown
	}
	e.mu.Lock()
	e.selectedModel = &info
	e.mu.Unlock()
	return nil
}

// CycleModel advances the selected model to the next entry in Catalog
// order, wrapping around.
func (e *Engine) CycleModel() {
	models := catalog.Models
	if len(models) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selectedModel == nil {
		m := models[0]
		e.selectedModel = &m
		return
	}
	for i, m := range models {
		if m.ID == e.selectedModel.ID {
			next := models[(i+1)%len(models)]
			e.selectedModel = &next
			return
		}
	}
	m := models[0]
	e.selectedModel = &m
}

// SetSearch implements spec §4.8: FTS over titles and message content,
// falling back to substring-over-titles, with selection repair.
func (e *Engine) SetSearch(ctx context.Context, query string) error {
	results, err := e.store.Search(ctx, query)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.searchResults = results
	if query == "" {
		e.chatsCache = results
	}

	var reselect *chatstore.ChatId
	if query != "" {
		stillPresent := false
		if e.currentChat != nil {
			for _, c := range results {
				if c.ID == e.currentChat.ID {
					stillPresent = true
					break
				}
			}
		}
		if !stillPresent {
			if len(results) > 0 {
				id := results[0].ID
				reselect = &id
			} else {
				e.currentChat = nil
				e.currentMessages = nil
			}
		}
	}
	e.mu.Unlock()

	if reselect != nil {
		return e.SelectChat(ctx, *reselect)
	}
	return nil
}

func (e *Engine) refreshChats(ctx context.Context) {
	chats, err := e.store.ListLive(ctx)
	if err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	e.chatsCache = chats
	e.mu.Unlock()
}
