package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	blob "chatgate/internal/infrastructure/blob/port"
	qport "chatgate/internal/infrastructure/queue/port"
	chat "chatgate/internal/pkg/chat/application/domain"
	"chatgate/internal/pkg/chat/application/task"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// AttachmentController handles the upload endpoint. An upload stores the
// blob and the metadata row; referencing it from a message is a separate,
// later step. Image uploads get a thumbnail generated in the background.
type AttachmentController struct {
	repo  repository.ChatRepository
	store blob.Store
	queue qport.Client
}

func NewAttachmentController(repo repository.ChatRepository, store blob.Store, queue qport.Client) *AttachmentController {
	return &AttachmentController{repo: repo, store: store, queue: queue}
}

// HandleUpload accepts a multipart "file" field up to the attachment size cap.
func (h *AttachmentController) HandleUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, chat.MaxAttachmentSize)

		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
			return
		}
		if header.Size > chat.MaxAttachmentSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 20MB limit"})
			return
		}

		src, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
			return
		}
		defer src.Close()

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		key := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(header.Filename))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		url, err := h.store.Save(ctx, key, src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
			return
		}

		att := chat.Attachment{
			UploaderID:   currentUserID(c),
			StorageKey:   key,
			OriginalName: filepath.Base(header.Filename),
			MimeType:     mimeType,
			Size:         header.Size,
		}
		id, err := h.repo.CreateAttachment(ctx, att)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if att.IsImage() {
			h.enqueueThumbnail(ctx, id)
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":            id,
			"url":           url,
			"original_name": att.OriginalName,
			"mime_type":     att.MimeType,
			"size":          att.Size,
		})
	}
}

// enqueueThumbnail is best-effort; a missing thumbnail never fails an upload.
func (h *AttachmentController) enqueueThumbnail(ctx context.Context, attachmentID int64) {
	payload, err := json.Marshal(task.ThumbnailPayload{AttachmentID: attachmentID})
	if err != nil {
		return
	}
	_, _ = h.queue.Enqueue(ctx, qport.Task{Type: task.TypeThumbnail, Payload: payload},
		qport.EnqueueOption{Queue: "chat", MaxRetry: 3})
}
