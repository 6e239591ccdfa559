package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chatgate/internal/infrastructure/realtime"
	"chatgate/internal/pkg/chat/application/usecase"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
	users "chatgate/internal/repository/port"
)

// ModerationController covers message soft-deletion and reporting.
type ModerationController struct {
	deleteUC *usecase.DeleteMessageUseCase
	reportUC *usecase.ReportMessageUseCase
	bus      *realtime.Bus
}

func NewModerationController(repo repository.ChatRepository, dir users.UserDirectory, bus *realtime.Bus) *ModerationController {
	return &ModerationController{
		deleteUC: usecase.NewDeleteMessageUseCase(repo, dir),
		reportUC: usecase.NewReportMessageUseCase(repo),
		bus:      bus,
	}
}

func messageParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return id, true
}

type deleteMessageRequest struct {
	Reason string `json:"reason"`
}

// HandleDelete soft-deletes a message and broadcasts the deletion to live
// viewers. A repeated delete is a success with an already_deleted marker.
func (h *ModerationController) HandleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		msgID, ok := messageParam(c)
		if !ok {
			return
		}
		var req deleteMessageRequest
		_ = c.ShouldBindJSON(&req)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		res, err := h.deleteUC.Execute(ctx, usecase.DeleteMessageInput{
			MessageID: msgID,
			ActorID:   currentUserID(c),
			Reason:    req.Reason,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		if !res.AlreadyDeleted {
			h.bus.Publish(realtime.ConvGroup(res.ConversationID),
				messageDeletedEvent(res.ConversationID, res.MessageID, currentUserID(c)))
		}
		c.JSON(http.StatusOK, gin.H{
			"conversation_id": res.ConversationID,
			"message_id":      res.MessageID,
			"already_deleted": res.AlreadyDeleted,
		})
	}
}

type reportMessageRequest struct {
	Reason string `json:"reason"`
}

// HandleReport files a report against a message on behalf of the caller.
func (h *ModerationController) HandleReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		msgID, ok := messageParam(c)
		if !ok {
			return
		}
		var req reportMessageRequest
		_ = c.ShouldBindJSON(&req)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		id, err := h.reportUC.Execute(ctx, usecase.ReportMessageInput{
			MessageID:  msgID,
			ReporterID: currentUserID(c),
			Reason:     req.Reason,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"report_id": id, "message_id": msgID})
	}
}
