package usecase

import (
	"context"
	"fmt"
	"strings"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// ReportMessageInput files a moderation report against a message.
type ReportMessageInput struct {
	MessageID  int64
	ReporterID int64
	Reason     string
}

// ReportMessageUseCase is purely additive: any member of the conversation may
// report any of its messages, and the message itself is never mutated.
type ReportMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewReportMessageUseCase(repo repository.ChatRepository) *ReportMessageUseCase {
	return &ReportMessageUseCase{Repo: repo}
}

func (uc *ReportMessageUseCase) Execute(ctx context.Context, in ReportMessageInput) (int64, error) {
	msg, err := uc.Repo.GetMessage(ctx, in.MessageID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg == nil {
		return 0, chat.ErrNotFound
	}

	isMember, err := uc.Repo.IsMember(ctx, msg.ConversationID, in.ReporterID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isMember {
		return 0, chat.ErrNotMember
	}

	id, err := uc.Repo.CreateReport(ctx, chat.Report{
		ReporterID: in.ReporterID,
		MessageID:  msg.ID,
		Reason:     strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return id, nil
}
