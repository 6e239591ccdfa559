package usecase

import (
	"context"
	"fmt"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to append a new message.
// Rate limiting happens at the gateway before this use case runs.
type SendMessageInput struct {
	ConversationID int64
	SenderID       int64
	Text           string
	AttachmentID   *int64
}

// SendMessageUseCase validates and persists an outgoing message. The append
// and the sender's own read-watermark advance are one atomic unit in the
// repository, so a sender can never appear behind their own message.
type SendMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

// Execute returns the stored message and, when one is referenced, its
// attachment for the broadcast payload.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, *chat.Attachment, error) {
	if in.ConversationID == 0 || in.SenderID == 0 {
		return nil, nil, fmt.Errorf("conversation_id and sender_id are required")
	}

	isMember, err := uc.Repo.IsMember(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isMember {
		return nil, nil, chat.ErrNotMember
	}

	var attachment *chat.Attachment
	if in.AttachmentID != nil {
		attachment, err = uc.Repo.GetAttachment(ctx, *in.AttachmentID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if attachment == nil {
			return nil, nil, chat.ErrNotFound
		}
	}

	msg, err := chat.NewMessage(in.ConversationID, in.SenderID, in.Text, in.AttachmentID)
	if err != nil {
		return nil, nil, err
	}

	stored, err := uc.Repo.AppendMessage(ctx, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &stored, attachment, nil
}
