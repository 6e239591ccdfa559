package usecase

import (
	"context"
	"fmt"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// SupportQueueUseCase covers the operator-facing queue operations: listing
// with filters, claiming a conversation, and closing it.
type SupportQueueUseCase struct {
	Repo repository.ChatRepository
}

func NewSupportQueueUseCase(repo repository.ChatRepository) *SupportQueueUseCase {
	return &SupportQueueUseCase{Repo: repo}
}

func (uc *SupportQueueUseCase) List(ctx context.Context, f repository.SupportQueueFilter) ([]chat.ConversationSummary, error) {
	items, err := uc.Repo.ListSupportQueue(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return items, nil
}

// Assign claims the conversation for operatorID and ensures membership with
// the support role. Closed or missing conversations are rejected.
func (uc *SupportQueueUseCase) Assign(ctx context.Context, conversationID, operatorID int64) error {
	conv, err := uc.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if conv == nil || conv.Kind != chat.KindSupport {
		return chat.ErrNotFound
	}
	if !conv.IsOpen() {
		return chat.ErrConversationClosed
	}

	ok, err := uc.Repo.AssignConversation(ctx, conversationID, operatorID, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return chat.ErrConversationClosed
	}
	if err := uc.Repo.AddMember(ctx, chat.Member{
		ConversationID: conversationID,
		UserID:         operatorID,
		Role:           chat.RoleSupport,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (uc *SupportQueueUseCase) Close(ctx context.Context, conversationID int64) error {
	conv, err := uc.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if conv == nil || conv.Kind != chat.KindSupport {
		return chat.ErrNotFound
	}
	if err := uc.Repo.CloseConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
