package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatgate/internal/pkg/chat/application/assign"
	"chatgate/internal/pkg/chat/application/usecase"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
	users "chatgate/internal/repository/port"
)

// ConversationController handles the conversation collection: listing the
// caller's inbox and starting direct, group and support conversations.
type ConversationController struct {
	listUC   *usecase.ListConversationsUseCase
	createUC *usecase.CreateConversationUseCase
	repo     repository.ChatRepository
}

func NewConversationController(repo repository.ChatRepository, dir users.UserDirectory, coord *assign.Coordinator) *ConversationController {
	return &ConversationController{
		listUC:   usecase.NewListConversationsUseCase(repo),
		createUC: usecase.NewCreateConversationUseCase(repo, dir, coord),
		repo:     repo,
	}
}

type createConversationRequest struct {
	Support        bool    `json:"support"`
	OtherUserID    int64   `json:"other_user_id"`
	ParticipantIDs []int64 `json:"participant_ids"`
	Title          string  `json:"title"`
}

// HandleList returns the caller's conversations, most recently active first,
// each with a last-message preview and unread count. ?q= filters by title.
func (h *ConversationController) HandleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		items, err := h.listUC.Execute(ctx, currentUserID(c), c.Query("q"))
		if err != nil {
			abortWithError(c, err)
			return
		}

		out := make([]gin.H, 0, len(items))
		for _, s := range items {
			entry := gin.H{
				"id":           s.Conversation.ID,
				"kind":         s.Conversation.Kind,
				"title":        s.Conversation.Title,
				"status":       s.Conversation.Status,
				"unread_count": s.UnreadCount,
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

// HandleCreate starts a conversation. Direct and support requests reuse an
// existing thread when one exists and report it with 200 instead of 201.
func (h *ConversationController) HandleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		res, err := h.createUC.Execute(ctx, usecase.CreateConversationInput{
			CreatorID:      currentUserID(c),
			Support:        req.Support,
			OtherUserID:    req.OtherUserID,
			ParticipantIDs: req.ParticipantIDs,
			Title:          req.Title,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"id": res.ID, "created": res.Created})
	}
}

// HandleUnreadSummary reports whether anything anywhere is unread. Cheap
// enough for clients to poll for a badge.
func (h *ConversationController) HandleUnreadSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		hasUnread, err := h.repo.HasUnread(ctx, currentUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"has_unread": hasUnread})
	}
}
