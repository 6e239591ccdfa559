package assign

import (
	"context"
	"sync"

	chat "chatgate/internal/pkg/chat/application/domain"
	chatrepo "chatgate/internal/pkg/chat/persistence/repository/port"
	users "chatgate/internal/repository/port"
)

// Coordinator serializes operator selection for the support queue.
//
// The old system kept the round-robin pointer as a singleton database row
// updated under a row lock. Here the pointer is still persisted (so restarts
// keep their place in the rotation) but selection and pointer update run in
// one process-wide critical section, so two concurrent requests can never
// pick the same operator back to back.
type Coordinator struct {
	mu    sync.Mutex
	users users.UserDirectory
	state chatrepo.AssignmentStateStore
}

func NewCoordinator(dir users.UserDirectory, state chatrepo.AssignmentStateStore) *Coordinator {
	return &Coordinator{users: dir, state: state}
}

// Next picks the next operator in stable cyclic order and advances the
// pointer. Returns chat.ErrNoOperators when both pools are empty.
func (c *Coordinator) Next(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool, err := c.pool(ctx)
	if err != nil {
		return 0, err
	}
	if len(pool) == 0 {
		return 0, chat.ErrNoOperators
	}

	last, err := c.state.LastOperator(ctx)
	if err != nil {
		return 0, err
	}

	chosen := pool[0]
	if last != nil {
		for i, id := range pool {
			if id == *last {
				chosen = pool[(i+1)%len(pool)]
				break
			}
		}
	}
	if err := c.state.SetLastOperator(ctx, chosen); err != nil {
		return 0, err
	}
	return chosen, nil
}

// pool returns candidate operator ids ordered by id: active operators first,
// active staff as the fallback when no operator accounts exist.
func (c *Coordinator) pool(ctx context.Context) ([]int64, error) {
	ops, err := c.users.ListActiveOperators(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		ops, err = c.users.ListActiveStaff(ctx)
		if err != nil {
			return nil, err
		}
	}
	ids := make([]int64, 0, len(ops))
	for _, u := range ops {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
