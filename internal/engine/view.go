package engine

import (
	"github.com/scriptkit/aichat/internal/catalog"
	"github.com/scriptkit/aichat/internal/chatstore"
)

// View is the narrow, pull-style surface the UI layer consumes (spec
// §4.7). It is a snapshot taken at call time; callers re-read it on their
// own cooperative schedule (a ~50ms poll tick in the reference design).
type View struct {
	Chats           []chatstore.Chat
	SelectedChat    *chatstore.ChatId
	Messages        []chatstore.Message
	IsStreaming     bool
	StreamingBuffer string
	AvailableModels []catalog.ModelInfo
	SelectedModel   *catalog.ModelInfo
	SearchResults   []chatstore.Chat
	Error           *ErrorView
}

// ErrorView carries the last engine-surfaced error for display. It is
// consumed exactly once: the next View() call after it has been read
// returns nil unless a new error has since occurred.
type ErrorView struct {
	Message string
}

// View returns a snapshot of all engine-facing observables.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		Chats:           e.chatsCache,
		AvailableModels: append([]catalog.ModelInfo(nil), catalog.Models...),
		SelectedModel:   e.selectedModel,
		SearchResults:   e.searchResults,
	}

	if e.currentChat != nil {
		id := e.currentChat.ID
		v.SelectedChat = &id
	}
	v.Messages = append([]chatstore.Message(nil), e.currentMessages...)

	if e.activeSession != nil && e.currentChat != nil &&
		e.streamingChatID != nil && *e.streamingChatID == e.currentChat.ID {
		v.IsStreaming = true
		v.StreamingBuffer = e.activeSession.snapshot()
	}

	if e.lastErr != nil {
		v.Error = &ErrorView{Message: e.lastErr.Error()}
		e.lastErr = nil
	}

	return v
}
