package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	chat "chatgate/internal/pkg/chat/application/domain"
	"chatgate/internal/pkg/chat/application/usecase"
)

// abortWithError maps domain errors onto HTTP statuses. Persistence failures
// never leak their wrapped detail to the client.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, chat.ErrConversationClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "conversation is closed"})
	case errors.Is(err, chat.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text or attachment is required"})
	case errors.Is(err, chat.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text is too long"})
	case errors.Is(err, chat.ErrNoOperators):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no operators available"})
	case errors.Is(err, usecase.ErrPersistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// currentUserID reads the identity placed on the context by the auth middleware.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}
