package models

import (
	"time"
	"unicode/utf8"
)

// DefaultConversationTitle is used when a conversation is created without a title.
const DefaultConversationTitle = "New Conversation"

// maxDerivedTitleLen is the rune length of a title derived from a first message.
const maxDerivedTitleLen = 50

// Conversation is a persistent chat session with its full message history.
type Conversation struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationListItem is the sidebar projection of a conversation.
type ConversationListItem struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TitleFromContent derives a conversation title from the first user message:
// the first 50 runes, with "..." appended when the content was longer.
func TitleFromContent(content string) string {
	if utf8.RuneCountInString(content) <= maxDerivedTitleLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxDerivedTitleLen]) + "..."
}
