package repository

import (
	"context"

	chat "chatgate/internal/pkg/chat/application/domain"
)

// SupportQueueFilter narrows the support queue listing.
// Assigned: "" (all), "me" (AssignedTo == ViewerID), "unassigned".
type SupportQueueFilter struct {
	Status   chat.ConversationStatus // empty = all
	Assigned string
	ViewerID int64
}

// ChatRepository defines persistence operations for the chat domain.
//
// Reverse ORM-style traversals from the old system become explicit query
// methods here. Implementations must guarantee:
//   - message ids are assigned in strictly increasing order per conversation
//     (and globally comparable),
//   - AppendMessage also advances the sender's read watermark atomically,
//   - AdvanceRead/AdvanceDelivered only ever move watermarks forward and
//     treat stale updates as no-ops,
//   - watermark updates are serialized per (conversation, user), never
//     across conversations.
type ChatRepository interface {
	// Conversations.
	CreateConversation(ctx context.Context, c chat.Conversation, members []chat.Member) (int64, error)
	GetConversation(ctx context.Context, id int64) (*chat.Conversation, error)
	// FindDirectBetween returns an existing two-member direct conversation
	// for the pair, or nil.
	FindDirectBetween(ctx context.Context, userA, userB int64) (*chat.Conversation, error)
	// FindSupportFor returns the user's existing two-member support
	// conversation, or nil.
	FindSupportFor(ctx context.Context, userID int64) (*chat.Conversation, error)
	// ListConversationsFor returns the user's conversations, most recently
	// active first, with last-message preview and unread count. A non-empty
	// query filters by title substring (case-insensitive).
	ListConversationsFor(ctx context.Context, userID int64, query string) ([]chat.ConversationSummary, error)
	ListSupportQueue(ctx context.Context, f SupportQueueFilter) ([]chat.ConversationSummary, error)
	// ListOpenUnassignedSupport returns ids of open, unassigned support
	// conversations in creation order, capped at limit.
	ListOpenUnassignedSupport(ctx context.Context, limit int) ([]int64, error)
	// AssignConversation sets the operator. With onlyIfUnassigned it is a
	// compare-and-set: it reports false when the row was already assigned.
	AssignConversation(ctx context.Context, conversationID, operatorID int64, onlyIfUnassigned bool) (bool, error)
	CloseConversation(ctx context.Context, conversationID int64) error

	// Members.
	// AddMember is an idempotent upsert keyed by (conversation, user).
	AddMember(ctx context.Context, m chat.Member) error
	IsMember(ctx context.Context, conversationID, userID int64) (bool, error)
	GetMember(ctx context.Context, conversationID, userID int64) (*chat.Member, error)
	ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error)
	MemberUserIDs(ctx context.Context, conversationID int64) ([]int64, error)

	// Messages.
	AppendMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	GetMessage(ctx context.Context, id int64) (*chat.Message, error)
	// ListMessagesBefore returns up to limit messages strictly older than
	// beforeID (newest page when beforeID is nil), in ascending id order.
	ListMessagesBefore(ctx context.Context, conversationID int64, beforeID *int64, limit int) ([]chat.Message, error)
	// SearchMessages matches non-deleted message text by substring across
	// the user's conversations (or just conversationID when set).
	SearchMessages(ctx context.Context, userID int64, conversationID *int64, query string, limit int) ([]chat.Message, error)
	// SoftDeleteMessage reports false when the message was already deleted.
	SoftDeleteMessage(ctx context.Context, messageID, actorID int64, reason string) (bool, error)

	// Watermarks. Both return the effective (possibly unchanged) watermark.
	AdvanceRead(ctx context.Context, conversationID, userID, upToID int64) (int64, error)
	AdvanceDelivered(ctx context.Context, conversationID, userID, upToID int64) (int64, error)
	// HasUnread reports whether any conversation holds messages from others
	// past the user's read watermark.
	HasUnread(ctx context.Context, userID int64) (bool, error)

	// Moderation and attachments.
	CreateReport(ctx context.Context, r chat.Report) (int64, error)
	CreateAttachment(ctx context.Context, a chat.Attachment) (int64, error)
	GetAttachment(ctx context.Context, id int64) (*chat.Attachment, error)
	SetAttachmentThumbnail(ctx context.Context, id int64, thumbnailKey string) error
}

// AssignmentStateStore persists the round-robin pointer. Callers serialize
// access; the store itself only reads/writes the single row.
type AssignmentStateStore interface {
	LastOperator(ctx context.Context) (*int64, error)
	SetLastOperator(ctx context.Context, operatorID int64) error
}
