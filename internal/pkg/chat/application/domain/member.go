package chat

import "time"

// MemberRole expresses the role within a conversation.
type MemberRole string

const (
	RoleUser    MemberRole = "user"
	RoleSupport MemberRole = "support"
)

// Member captures membership and per-member watermark state.
// Primary key: (ConversationID, UserID).
//
// LastReadMsg and LastDeliveredMsg are monotonically non-decreasing message
// ids; nil means the member has not read/received anything yet. Repositories
// must only ever move them forward.
type Member struct {
	ConversationID   int64      `db:"conversation_id"`
	UserID           int64      `db:"user_id"`
	Role             MemberRole `db:"role"`
	LastReadMsg      *int64     `db:"last_read_message_id"`
	LastDeliveredMsg *int64     `db:"last_delivered_message_id"`
	IsMuted          bool       `db:"is_muted"`
	JoinedAt         time.Time  `db:"joined_at"`
}

// HasRead reports whether the member's read watermark covers messageID.
func (m Member) HasRead(messageID int64) bool {
	return m.LastReadMsg != nil && *m.LastReadMsg >= messageID
}

// HasReceived reports whether the member's delivery watermark covers messageID.
func (m Member) HasReceived(messageID int64) bool {
	return m.LastDeliveredMsg != nil && *m.LastDeliveredMsg >= messageID
}
