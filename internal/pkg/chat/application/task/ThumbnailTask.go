package task

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	blob "chatgate/internal/infrastructure/blob/port"
	qport "chatgate/internal/infrastructure/queue/port"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// TypeThumbnail is the queue task name for attachment thumbnail generation.
const TypeThumbnail = "chat:thumbnail"

// ThumbnailPayload is the JSON payload transported via the queue.
type ThumbnailPayload struct {
	AttachmentID int64 `json:"attachmentId"`
}

// RegisterThumbnailTask binds thumbnail generation to the worker server.
// Missing or non-image attachments complete without error so the queue does
// not retry what can never succeed.
func RegisterThumbnailTask(srv qport.Server, repo repository.ChatRepository, store blob.Store, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	srv.Register(TypeThumbnail, func(ctx context.Context, t qport.Task) error {
		var p ThumbnailPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		att, err := repo.GetAttachment(ctx, p.AttachmentID)
		if err != nil {
			return err
		}
		if att == nil || !att.IsImage() {
			return nil
		}

		thumbKey, err := store.Thumbnail(ctx, att.StorageKey)
		if err != nil {
			log.Warn("thumbnail generation failed",
				zap.Int64("attachment_id", p.AttachmentID), zap.Error(err))
			return err
		}
		return repo.SetAttachmentThumbnail(ctx, p.AttachmentID, thumbKey)
	})
}
