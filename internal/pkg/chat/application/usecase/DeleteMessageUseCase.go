package usecase

import (
	"context"
	"fmt"
	"strings"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
	users "chatgate/internal/repository/port"
)

// DeleteMessageInput soft-deletes a message with an optional moderation reason.
type DeleteMessageInput struct {
	MessageID int64
	ActorID   int64
	Reason    string
}

// DeleteMessageResult describes the message the delete applied to so the
// caller can broadcast the event.
type DeleteMessageResult struct {
	ConversationID int64
	MessageID      int64
	AlreadyDeleted bool
}

// DeleteMessageUseCase performs the soft-delete transition. Allowed for the
// original sender, or for an operator who is a member of the conversation.
// Deleting twice is a no-op success; the row and any reports are retained.
type DeleteMessageUseCase struct {
	Repo  repository.ChatRepository
	Users users.UserDirectory
}

func NewDeleteMessageUseCase(repo repository.ChatRepository, dir users.UserDirectory) *DeleteMessageUseCase {
	return &DeleteMessageUseCase{Repo: repo, Users: dir}
}

func (uc *DeleteMessageUseCase) Execute(ctx context.Context, in DeleteMessageInput) (DeleteMessageResult, error) {
	msg, err := uc.Repo.GetMessage(ctx, in.MessageID)
	if err != nil {
		return DeleteMessageResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg == nil {
		return DeleteMessageResult{}, chat.ErrNotFound
	}

	isMember, err := uc.Repo.IsMember(ctx, msg.ConversationID, in.ActorID)
	if err != nil {
		return DeleteMessageResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isMember {
		return DeleteMessageResult{}, chat.ErrNotMember
	}

	if msg.SenderID != in.ActorID {
		actor, err := uc.Users.FindByID(ctx, in.ActorID)
		if err != nil {
			return DeleteMessageResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if actor == nil || !actor.IsOperator() {
			return DeleteMessageResult{}, chat.ErrForbidden
		}
	}

	deleted, err := uc.Repo.SoftDeleteMessage(ctx, msg.ID, in.ActorID, strings.TrimSpace(in.Reason))
	if err != nil {
		return DeleteMessageResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return DeleteMessageResult{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		AlreadyDeleted: !deleted,
	}, nil
}
