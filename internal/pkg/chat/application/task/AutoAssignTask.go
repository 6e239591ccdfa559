package task

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	qport "chatgate/internal/infrastructure/queue/port"
	"chatgate/internal/pkg/chat/application/assign"
	"chatgate/internal/pkg/chat/application/usecase"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// TypeAutoAssign is the queue task name for the support auto-assign sweep.
const TypeAutoAssign = "chat:auto_assign"

// AutoAssignPayload is the JSON payload transported via the queue.
type AutoAssignPayload struct {
	Limit int `json:"limit"`
}

// RegisterAutoAssignTask binds the auto-assign sweep to the worker server.
// Each execution walks open unassigned support conversations in creation
// order and hands them to the rotation; the sweep is idempotent, so a retry
// after a partial run only picks up what is still unassigned.
func RegisterAutoAssignTask(srv qport.Server, repo repository.ChatRepository, coord *assign.Coordinator, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	uc := usecase.NewAutoAssignUseCase(repo, coord)
	srv.Register(TypeAutoAssign, func(ctx context.Context, t qport.Task) error {
		var p AutoAssignPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		assigned, err := uc.Execute(ctx, p.Limit)
		if err != nil {
			log.Error("auto-assign sweep failed", zap.Int("assigned", assigned), zap.Error(err))
			return err
		}
		log.Info("auto-assign sweep done", zap.Int("assigned", assigned))
		return nil
	})
}
