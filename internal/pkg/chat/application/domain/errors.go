package chat

import "errors"

// Domain-level errors for chat behaviors.
var (
	ErrNotMember          = errors.New("chat: user is not a member of the conversation")
	ErrNotFound           = errors.New("chat: entity not found")
	ErrEmptyMessage       = errors.New("chat: empty message (no text or attachment)")
	ErrMessageTooLong     = errors.New("chat: message text exceeds maximum length")
	ErrConversationClosed = errors.New("chat: conversation is closed")
	ErrForbidden          = errors.New("chat: action not allowed for this user")
	ErrSelfConversation   = errors.New("chat: cannot open a conversation with yourself")
	ErrNoOperators        = errors.New("chat: no active operators available")
)
