package chat

import (
	"strings"
	"time"
)

// MaxAttachmentSize is the upload cap in bytes (20MB).
const MaxAttachmentSize = 20 * 1024 * 1024

// Attachment is uploaded once and then referenced, never owned, by messages.
type Attachment struct {
	ID           int64     `db:"id"`
	UploaderID   int64     `db:"uploader_id"`
	StorageKey   string    `db:"storage_key"`
	ThumbnailKey *string   `db:"thumbnail_key"`
	OriginalName string    `db:"original_name"`
	MimeType     string    `db:"mime_type"`
	Size         int64     `db:"size"`
	CreatedAt    time.Time `db:"created_at"`
}

// IsImage reports whether the attachment is eligible for thumbnailing.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}
