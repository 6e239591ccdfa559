package chat

import "time"

// Report is an append-only moderation record attached to a message.
// Reporting never mutates the message itself.
type Report struct {
	ID         int64     `db:"id"`
	ReporterID int64     `db:"reporter_id"`
	MessageID  int64     `db:"message_id"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}
