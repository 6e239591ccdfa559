package usecase

import (
	"context"
	"fmt"
	"strings"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// ListConversationsUseCase serves the inbox: the caller's conversations with
// last-message preview and unread counts, optionally filtered by a title
// substring. Search here is deliberately a plain substring match.
type ListConversationsUseCase struct {
	Repo repository.ChatRepository
}

func NewListConversationsUseCase(repo repository.ChatRepository) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo}
}

func (uc *ListConversationsUseCase) Execute(ctx context.Context, userID int64, query string) ([]chat.ConversationSummary, error) {
	items, err := uc.Repo.ListConversationsFor(ctx, userID, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for i := range items {
		if items[i].LastMessage != nil {
			items[i].LastMessage.Text = items[i].LastMessage.VisibleText()
		}
	}
	return items, nil
}

// HasUnread backs the inbox badge.
func (uc *ListConversationsUseCase) HasUnread(ctx context.Context, userID int64) (bool, error) {
	ok, err := uc.Repo.HasUnread(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ok, nil
}
