package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	blob "chatgate/internal/infrastructure/blob/port"
	"chatgate/internal/infrastructure/realtime"
	chat "chatgate/internal/pkg/chat/application/domain"
	"chatgate/internal/pkg/chat/application/usecase"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// MessageController handles the REST side of messaging: paging through
// history, sending over HTTP, and advancing the read watermark. Sends and
// read marks are broadcast exactly like their websocket counterparts.
type MessageController struct {
	sendUC     *usecase.SendMessageUseCase
	fetchUC    *usecase.FetchMessagesUseCase
	markReadUC *usecase.MarkReadUseCase
	repo       repository.ChatRepository
	bus        *realtime.Bus
	store      blob.Store
}

func NewMessageController(repo repository.ChatRepository, bus *realtime.Bus, store blob.Store) *MessageController {
	return &MessageController{
		sendUC:     usecase.NewSendMessageUseCase(repo),
		fetchUC:    usecase.NewFetchMessagesUseCase(repo),
		markReadUC: usecase.NewMarkReadUseCase(repo),
		repo:       repo,
		bus:        bus,
		store:      store,
	}
}

func conversationParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("conversationId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

// HandleList returns one ascending page of history with per-message
// delivered/read counts derived from the members' watermarks. Counts exclude
// the sender.
func (h *MessageController) HandleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, ok := conversationParam(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		var beforeID *int64
		if raw := c.Query("before_id"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
				return
			}
			beforeID = &v
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

		msgs, err := h.fetchUC.Execute(ctx, usecase.FetchMessagesInput{
			ConversationID: convID,
			UserID:         currentUserID(c),
			BeforeID:       beforeID,
			Limit:          limit,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		members, err := h.repo.ListMembers(ctx, convID)
		if err != nil {
			abortWithError(c, err)
			return
		}

		items := make([]gin.H, 0, len(msgs))
		for _, m := range msgs {
			delivered, read := 0, 0
			for _, mem := range members {
				if mem.UserID == m.SenderID {
					continue
				}
				if mem.HasReceived(m.ID) {
					delivered++
				}
				if mem.HasRead(m.ID) {
					read++
				}
			}
			items = append(items, gin.H{
				"id":              m.ID,
				"conversation_id": m.ConversationID,
				"sender_id":       m.SenderID,
				"text":            m.VisibleText(),
				"is_deleted":      m.IsDeleted,
				"delivered_count": delivered,
				"read_count":      read,
				"created_at":      m.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "items": items})
	}
}

type sendMessageRequest struct {
	Text         string `json:"text"`
	AttachmentID *int64 `json:"attachment_id"`
}

// HandleSend stores a message and fans it out to the conversation group and
// every member's inbox group.
func (h *MessageController) HandleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, ok := conversationParam(c)
		if !ok {
			return
		}
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msg, att, err := h.sendUC.Execute(ctx, usecase.SendMessageInput{
			ConversationID: convID,
			SenderID:       currentUserID(c),
			Text:           req.Text,
			AttachmentID:   req.AttachmentID,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		h.broadcast(ctx, *msg, att)
		c.JSON(http.StatusCreated, newMessagePayload(*msg, att, h.store))
	}
}

func (h *MessageController) broadcast(ctx context.Context, msg chat.Message, att *chat.Attachment) {
	ev := messageEvent(msg, att, h.store)
	h.bus.Publish(realtime.ConvGroup(msg.ConversationID), ev)
	memberIDs, err := h.repo.MemberUserIDs(ctx, msg.ConversationID)
	if err != nil {
		return
	}
	for _, uid := range memberIDs {
		h.bus.Publish(realtime.UserGroup(uid), ev)
	}
}

type markReadRequest struct {
	UpToID int64 `json:"up_to_id" binding:"required"`
}

// HandleMarkRead advances the caller's read watermark and broadcasts the
// effective value to the conversation group.
func (h *MessageController) HandleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, ok := conversationParam(c)
		if !ok {
			return
		}
		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "up_to_id is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		effective, err := h.markReadUC.Execute(ctx, usecase.MarkReadInput{
			ConversationID: convID,
			UserID:         currentUserID(c),
			UpToID:         req.UpToID,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		h.bus.Publish(realtime.ConvGroup(convID), watermarkEvent("read", convID, currentUserID(c), effective))
		c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "up_to_id": effective})
	}
}
