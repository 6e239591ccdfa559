package usecase

import (
	"context"
	"fmt"
	"strings"

	"chatgate/internal/pkg/chat/application/assign"
	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
	users "chatgate/internal/repository/port"
)

// CreateConversationInput selects one of the three creation flows:
// support, direct (OtherUserID set) or group (ParticipantIDs set).
type CreateConversationInput struct {
	CreatorID      int64
	Support        bool
	OtherUserID    int64
	ParticipantIDs []int64
	Title          string
}

// CreateConversationResult reports the conversation id and whether an
// existing thread was reused instead of created.
type CreateConversationResult struct {
	ID      int64
	Created bool
}

// CreateConversationUseCase forms direct, group and support conversations.
// Direct and support creation dedupes against an existing two-member thread;
// support creation picks an operator from the round-robin coordinator.
type CreateConversationUseCase struct {
	Repo        repository.ChatRepository
	Users       users.UserDirectory
	Coordinator *assign.Coordinator
}

func NewCreateConversationUseCase(repo repository.ChatRepository, dir users.UserDirectory, coord *assign.Coordinator) *CreateConversationUseCase {
	return &CreateConversationUseCase{Repo: repo, Users: dir, Coordinator: coord}
}

func (uc *CreateConversationUseCase) Execute(ctx context.Context, in CreateConversationInput) (CreateConversationResult, error) {
	if in.CreatorID == 0 {
		return CreateConversationResult{}, fmt.Errorf("creator id is required")
	}
	switch {
	case in.Support:
		return uc.createSupport(ctx, in.CreatorID)
	case in.OtherUserID != 0:
		return uc.createDirect(ctx, in.CreatorID, in.OtherUserID)
	default:
		return uc.createGroup(ctx, in.CreatorID, in.ParticipantIDs, in.Title)
	}
}

func (uc *CreateConversationUseCase) createDirect(ctx context.Context, creatorID, otherID int64) (CreateConversationResult, error) {
	if otherID == creatorID {
		return CreateConversationResult{}, chat.ErrSelfConversation
	}
	other, err := uc.Users.FindByID(ctx, otherID)
	if err != nil {
		return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if other == nil {
		return CreateConversationResult{}, chat.ErrNotFound
	}

	existing, err := uc.Repo.FindDirectBetween(ctx, creatorID, otherID)
	if err != nil {
		return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if existing != nil {
		return CreateConversationResult{ID: existing.ID}, nil
	}

	id, err := uc.Repo.CreateConversation(ctx,
		chat.Conversation{Kind: chat.KindDirect, CreatedBy: creatorID},
		[]chat.Member{
			{UserID: creatorID, Role: chat.RoleUser},
			{UserID: otherID, Role: chat.RoleUser},
		})
	if err != nil {
		return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return CreateConversationResult{ID: id, Created: true}, nil
}

func (uc *CreateConversationUseCase) createSupport(ctx context.Context, creatorID int64) (CreateConversationResult, error) {
	existing, err := uc.Repo.FindSupportFor(ctx, creatorID)
	if err != nil {
		return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if existing != nil {
		return CreateConversationResult{ID: existing.ID}, nil
	}

	operatorID, err := uc.Coordinator.Next(ctx)
	if err != nil {
		return CreateConversationResult{}, err
	}
	if operatorID == creatorID {
		return CreateConversationResult{}, chat.ErrSelfConversation
	}

	id, err := uc.Repo.CreateConversation(ctx,
		chat.Conversation{Kind: chat.KindSupport, CreatedBy: creatorID, Status: chat.StatusOpen, AssignedTo: &operatorID},
		[]chat.Member{
			{UserID: creatorID, Role: chat.RoleUser},
			{UserID: operatorID, Role: chat.RoleSupport},
		})
	if err != nil {
		return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return CreateConversationResult{ID: id, Created: true}, nil
}

func (uc *CreateConversationUseCase) createGroup(ctx context.Context, creatorID int64, participantIDs []int64, title string) (CreateConversationResult, error) {
	ids := map[int64]struct{}{creatorID: {}}
	for _, id := range participantIDs {
		if id != 0 {
			ids[id] = struct{}{}
		}
	}

	members := make([]chat.Member, 0, len(ids))
	for id := range ids {
		u, err := uc.Users.FindByID(ctx, id)
		if err != nil {
			return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if u == nil || !u.IsActive {
			continue
		}
		members = append(members, chat.Member{UserID: id, Role: chat.RoleUser})
	}
	if len(members) < 2 {
		return CreateConversationResult{}, chat.ErrNotFound
	}

	id, err := uc.Repo.CreateConversation(ctx,
		chat.Conversation{Kind: chat.KindGroup, Title: strings.TrimSpace(title), CreatedBy: creatorID},
		members)
	if err != nil {
		return CreateConversationResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return CreateConversationResult{ID: id, Created: true}, nil
}
