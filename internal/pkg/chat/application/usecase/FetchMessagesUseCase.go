package usecase

import (
	"context"
	"fmt"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

const (
	// DefaultFetchLimit and MaxFetchLimit bound history pagination.
	DefaultFetchLimit = 30
	MaxFetchLimit     = 100
)

// FetchMessagesInput pages backwards through a conversation's history.
// BeforeID nil means the newest page.
type FetchMessagesInput struct {
	ConversationID int64
	UserID         int64
	BeforeID       *int64
	Limit          int
}

// FetchMessagesUseCase returns messages strictly older than BeforeID in
// ascending id order. Deleted messages keep their row but their text is
// blanked before leaving the store layer.
type FetchMessagesUseCase struct {
	Repo repository.ChatRepository
}

func NewFetchMessagesUseCase(repo repository.ChatRepository) *FetchMessagesUseCase {
	return &FetchMessagesUseCase{Repo: repo}
}

func (uc *FetchMessagesUseCase) Execute(ctx context.Context, in FetchMessagesInput) ([]chat.Message, error) {
	if in.ConversationID == 0 {
		return nil, fmt.Errorf("conversation_id is required")
	}

	isMember, err := uc.Repo.IsMember(ctx, in.ConversationID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isMember {
		return nil, chat.ErrNotMember
	}

	limit := in.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if limit > MaxFetchLimit {
		limit = MaxFetchLimit
	}

	msgs, err := uc.Repo.ListMessagesBefore(ctx, in.ConversationID, in.BeforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for i := range msgs {
		msgs[i].Text = msgs[i].VisibleText()
	}
	return msgs, nil
}
