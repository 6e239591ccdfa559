package chat

import "time"

// ConversationKind discriminates the three chat flavors.
type ConversationKind string

const (
	KindDirect  ConversationKind = "direct"
	KindGroup   ConversationKind = "group"
	KindSupport ConversationKind = "support"
)

// ConversationStatus is only meaningful for support conversations.
type ConversationStatus string

const (
	StatusOpen   ConversationStatus = "open"
	StatusClosed ConversationStatus = "closed"
)

// Conversation is a chat thread. Support conversations additionally carry a
// queue status and an optional assigned operator. Conversations are never
// hard-deleted; support threads are closed instead.
type Conversation struct {
	ID         int64              `db:"id"`
	Kind       ConversationKind   `db:"kind"`
	Title      string             `db:"title"`
	CreatedBy  int64              `db:"created_by"`
	Status     ConversationStatus `db:"status"`
	AssignedTo *int64             `db:"assigned_to"`
	CreatedAt  time.Time          `db:"created_at"`
}

// IsOpen reports whether the conversation still accepts queue operations.
func (c Conversation) IsOpen() bool { return c.Status == StatusOpen }

// ConversationSummary is the list/queue projection of a conversation:
// the row itself plus a last-message preview and the caller's unread count.
type ConversationSummary struct {
	Conversation
	LastMessage *Message
	UnreadCount int
}
