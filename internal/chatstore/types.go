package chatstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatId is a stable, 128-bit random identifier for a Chat. Its canonical
// text form is its UUID string representation.
type ChatId uuid.UUID

// NewChatId generates a fresh, random ChatId.
func NewChatId() ChatId {
	return ChatId(uuid.New())
}

// ParseChatId parses a ChatId from its canonical text form.
func ParseChatId(s string) (ChatId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChatId{}, fmt.Errorf("parsing chat id %q: %w", s, err)
	}
	return ChatId(u), nil
}

func (c ChatId) String() string {
	return uuid.UUID(c).String()
}

// MessageRole enumerates the three roles a Message may carry. Equality is
// by enumerant; there is no meaningful ordering between roles.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// DefaultTitle is the title every Chat is created with. The Engine derives
// a real title from the first user submission only while the title still
// equals this value (I5).
const DefaultTitle = "New Chat"

// Chat is a single conversation record.
type Chat struct {
	ID         ChatId
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time // nil means live; non-nil means in trash
	ModelID    string
	ProviderID string
}

// IsLive reports whether the chat has not been soft-deleted.
func (c Chat) IsLive() bool {
	return c.DeletedAt == nil
}

// Message is a single turn atom belonging to a Chat.
type Message struct {
	ID         string
	ChatID     ChatId
	Role       MessageRole
	Content    string
	CreatedAt  time.Time
	TokensUsed *uint32 // nil means unknown/not reported
}

// titleMaxRunes bounds a derived title; longer titles are truncated with an
// ellipsis appended (spec §3).
const titleMaxRunes = 50

// GenerateTitle derives a chat title from a user submission: the first
// non-empty line, truncated to 50 characters with "..." appended if it was
// truncated. Whitespace-only input yields DefaultTitle, leaving the caller
// to decide whether to apply it (a chat's title is only ever overwritten
// while it still equals DefaultTitle; see I5).
func GenerateTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "..."
		}
		return trimmed
	}
	return DefaultTitle
}
