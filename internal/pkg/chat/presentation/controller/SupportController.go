package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	qport "chatgate/internal/infrastructure/queue/port"
	chat "chatgate/internal/pkg/chat/application/domain"
	"chatgate/internal/pkg/chat/application/task"
	"chatgate/internal/pkg/chat/application/usecase"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// SupportController exposes the operator-facing queue. Every route behind it
// is mounted under the operator-only middleware.
type SupportController struct {
	queueUC *usecase.SupportQueueUseCase
	queue   qport.Client
}

func NewSupportController(repo repository.ChatRepository, queue qport.Client) *SupportController {
	return &SupportController{
		queueUC: usecase.NewSupportQueueUseCase(repo),
		queue:   queue,
	}
}

// HandleQueue lists support conversations. ?status=open|closed and
// ?assigned=me|unassigned narrow the listing.
func (h *SupportController) HandleQueue() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		filter := repository.SupportQueueFilter{
			Assigned: c.Query("assigned"),
			ViewerID: currentUserID(c),
		}
		switch c.Query("status") {
		case "":
		case "open":
			filter.Status = chat.StatusOpen
		case "closed":
			filter.Status = chat.StatusClosed
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}

		items, err := h.queueUC.List(ctx, filter)
		if err != nil {
			abortWithError(c, err)
			return
		}

		out := make([]gin.H, 0, len(items))
		for _, s := range items {
			entry := gin.H{
				"id":           s.Conversation.ID,
				"status":       s.Conversation.Status,
				"created_by":   s.Conversation.CreatedBy,
				"assigned_to":  s.Conversation.AssignedTo,
				"unread_count": s.UnreadCount,
				"created_at":   s.Conversation.CreatedAt.Format(time.RFC3339),
			}
			if s.LastMessage != nil {
				entry["last_message"] = gin.H{
					"id":         s.LastMessage.ID,
					"sender_id":  s.LastMessage.SenderID,
					"text":       s.LastMessage.VisibleText(),
					"created_at": s.LastMessage.CreatedAt.Format(time.RFC3339),
				}
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"items": out})
	}
}

// HandleAssign claims the conversation for the calling operator.
func (h *SupportController) HandleAssign() gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, ok := conversationParam(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := h.queueUC.Assign(ctx, convID, currentUserID(c)); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "assigned_to": currentUserID(c)})
	}
}

// HandleClose marks the conversation closed. Closed conversations drop out
// of the open queue and refuse further assignment; history stays readable.
func (h *SupportController) HandleClose() gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, ok := conversationParam(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := h.queueUC.Close(ctx, convID); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "status": chat.StatusClosed})
	}
}

// HandleAutoAssign enqueues a background sweep over open unassigned support
// conversations. The sweep itself runs on the worker.
func (h *SupportController) HandleAutoAssign() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

		payload, err := json.Marshal(task.AutoAssignPayload{Limit: limit})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		id, err := h.queue.Enqueue(ctx, qport.Task{Type: task.TypeAutoAssign, Payload: payload},
			qport.EnqueueOption{Queue: "support", UniqueTTL: time.Minute})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not enqueue"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": id})
	}
}
