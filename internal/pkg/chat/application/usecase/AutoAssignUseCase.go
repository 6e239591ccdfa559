package usecase

import (
	"context"
	"errors"
	"fmt"

	"chatgate/internal/pkg/chat/application/assign"
	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

const (
	// DefaultAutoAssignLimit and MaxAutoAssignLimit bound one sweep.
	DefaultAutoAssignLimit = 20
	MaxAutoAssignLimit     = 200
)

// AutoAssignUseCase sweeps open, unassigned support conversations in creation
// order and hands each one to the next operator in the rotation. A
// conversation that became assigned between selection and commit is skipped,
// never double-assigned.
type AutoAssignUseCase struct {
	Repo        repository.ChatRepository
	Coordinator *assign.Coordinator
}

func NewAutoAssignUseCase(repo repository.ChatRepository, coord *assign.Coordinator) *AutoAssignUseCase {
	return &AutoAssignUseCase{Repo: repo, Coordinator: coord}
}

// Execute returns the number of conversations assigned.
func (uc *AutoAssignUseCase) Execute(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultAutoAssignLimit
	}
	if limit > MaxAutoAssignLimit {
		limit = MaxAutoAssignLimit
	}

	ids, err := uc.Repo.ListOpenUnassignedSupport(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	assigned := 0
	for _, convID := range ids {
		operatorID, err := uc.Coordinator.Next(ctx)
		if errors.Is(err, chat.ErrNoOperators) {
			break
		}
		if err != nil {
			return assigned, err
		}

		ok, err := uc.Repo.AssignConversation(ctx, convID, operatorID, true)
		if err != nil {
			return assigned, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if !ok {
			// claimed by someone else since the listing; skip
			continue
		}
		if err := uc.Repo.AddMember(ctx, chat.Member{
			ConversationID: convID,
			UserID:         operatorID,
			Role:           chat.RoleSupport,
		}); err != nil {
			return assigned, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		assigned++
	}
	return assigned, nil
}
