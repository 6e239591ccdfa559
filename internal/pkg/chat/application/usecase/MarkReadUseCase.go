package usecase

import (
	"context"
	"fmt"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// MarkReadInput advances a member's read watermark up to a message.
type MarkReadInput struct {
	ConversationID int64
	UserID         int64
	UpToID         int64
}

// MarkReadUseCase moves the read watermark forward, never backward. Stale or
// duplicate updates are accepted as no-ops; the returned watermark is the
// effective one either way.
type MarkReadUseCase struct {
	Repo repository.ChatRepository
}

func NewMarkReadUseCase(repo repository.ChatRepository) *MarkReadUseCase {
	return &MarkReadUseCase{Repo: repo}
}

func (uc *MarkReadUseCase) Execute(ctx context.Context, in MarkReadInput) (int64, error) {
	return advanceWatermark(ctx, uc.Repo, in.ConversationID, in.UserID, in.UpToID, uc.Repo.AdvanceRead)
}

// advanceWatermark validates the target message and applies the monotonic
// advance shared by the read and delivered paths.
func advanceWatermark(
	ctx context.Context,
	repo repository.ChatRepository,
	conversationID, userID, upToID int64,
	apply func(context.Context, int64, int64, int64) (int64, error),
) (int64, error) {
	member, err := repo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if member == nil {
		return 0, chat.ErrNotMember
	}

	msg, err := repo.GetMessage(ctx, upToID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg == nil || msg.ConversationID != conversationID {
		return 0, chat.ErrNotFound
	}

	effective, err := apply(ctx, conversationID, userID, upToID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return effective, nil
}
