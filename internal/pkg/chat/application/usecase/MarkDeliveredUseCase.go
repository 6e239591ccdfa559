package usecase

import (
	"context"

	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// MarkDeliveredInput advances a member's delivery watermark up to a message.
type MarkDeliveredInput struct {
	ConversationID int64
	UserID         int64
	UpToID         int64
}

// MarkDeliveredUseCase mirrors MarkRead for the delivery watermark. The
// gateway runs it after handing a message event to a recipient socket.
type MarkDeliveredUseCase struct {
	Repo repository.ChatRepository
}

func NewMarkDeliveredUseCase(repo repository.ChatRepository) *MarkDeliveredUseCase {
	return &MarkDeliveredUseCase{Repo: repo}
}

func (uc *MarkDeliveredUseCase) Execute(ctx context.Context, in MarkDeliveredInput) (int64, error) {
	return advanceWatermark(ctx, uc.Repo, in.ConversationID, in.UserID, in.UpToID, uc.Repo.AdvanceDelivered)
}
