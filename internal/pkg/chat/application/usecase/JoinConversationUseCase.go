package usecase

import (
	"context"
	"fmt"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// JoinConversationInput validates a request to attach a user session to a conversation.
type JoinConversationInput struct {
	ConversationID int64
	UserID         int64
}

// JoinConversationUseCase ensures the user belongs to the conversation before
// the gateway subscribes the session to its broadcast group.
type JoinConversationUseCase struct {
	Repo repository.ChatRepository
}

func NewJoinConversationUseCase(repo repository.ChatRepository) *JoinConversationUseCase {
	return &JoinConversationUseCase{Repo: repo}
}

func (uc *JoinConversationUseCase) Execute(ctx context.Context, in JoinConversationInput) error {
	if in.ConversationID == 0 || in.UserID == 0 {
		return fmt.Errorf("conversation_id and user_id are required")
	}

	ok, err := uc.Repo.IsMember(ctx, in.ConversationID, in.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return chat.ErrNotMember
	}
	return nil
}
