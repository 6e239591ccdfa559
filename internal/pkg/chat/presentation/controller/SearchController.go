package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

const searchResultLimit = 50

// SearchController implements message search across the caller's
// conversations. Deleted messages never match.
type SearchController struct {
	repo repository.ChatRepository
}

func NewSearchController(repo repository.ChatRepository) *SearchController {
	return &SearchController{repo: repo}
}

// HandleMessages searches by text substring. ?conversation_id= narrows the
// search to one conversation.
func (h *SearchController) HandleMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
			return
		}

		var convID *int64
		if raw := c.Query("conversation_id"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
				return
			}
			convID = &v
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.repo.SearchMessages(ctx, currentUserID(c), convID, query, searchResultLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		items := make([]gin.H, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, gin.H{
				"id":              m.ID,
				"conversation_id": m.ConversationID,
				"sender_id":       m.SenderID,
				"text":            m.Text,
				"created_at":      m.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}
