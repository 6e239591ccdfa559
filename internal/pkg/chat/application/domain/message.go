package chat

import (
	"strings"
	"time"
)

// MaxMessageLen is the maximum accepted message text length in runes.
const MaxMessageLen = 2000

// Message is an append-only log entry in a conversation. Rows are immutable
// once created except for the soft-delete transition. The id is the canonical
// ordering key; wall-clock CreatedAt is informational only.
type Message struct {
	ID             int64      `db:"id"`
	ConversationID int64      `db:"conversation_id"`
	SenderID       int64      `db:"sender_id"`
	AttachmentID   *int64     `db:"attachment_id"`
	Text           string     `db:"text"`
	IsSystem       bool       `db:"is_system"`
	IsDeleted      bool       `db:"is_deleted"`
	DeletedAt      *time.Time `db:"deleted_at"`
	DeletedBy      *int64     `db:"deleted_by"`
	DeleteReason   string     `db:"delete_reason"`
	CreatedAt      time.Time  `db:"created_at"`
}

// VisibleText returns the text clients are allowed to see. A deleted
// message's text is never exposed, regardless of what a cache still holds.
func (m Message) VisibleText() string {
	if m.IsDeleted {
		return ""
	}
	return m.Text
}

// NewMessage validates and normalizes an outgoing message.
func NewMessage(conversationID, senderID int64, text string, attachmentID *int64) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachmentID == nil {
		return Message{}, ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageLen {
		return Message{}, ErrMessageTooLong
	}
	return Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		AttachmentID:   attachmentID,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
