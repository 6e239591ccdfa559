package assign

import (
	"context"
	"errors"
	"sync"
	"testing"

	chat "chatgate/internal/pkg/chat/application/domain"
	chatAdapter "chatgate/internal/pkg/chat/persistence/repository/adapter"
	userAdapter "chatgate/internal/repository/adapter"
	users "chatgate/internal/repository/port"
)

func operatorDirectory(ids ...int64) *userAdapter.MemUserRepository {
	dir := userAdapter.NewMemUserRepository()
	for _, id := range ids {
		dir.Put(users.User{ID: id, Role: "operator", IsActive: true})
	}
	return dir
}

func TestNextCyclesThroughOperators(t *testing.T) {
	dir := operatorDirectory(10, 20, 30)
	coord := NewCoordinator(dir, chatAdapter.NewMemChatRepository())
	ctx := context.Background()

	var got []int64
	for i := 0; i < 6; i++ {
		id, err := coord.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, id)
	}

	want := []int64{10, 20, 30, 10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}
}

func TestNextResumesFromPersistedPointer(t *testing.T) {
	dir := operatorDirectory(10, 20, 30)
	state := chatAdapter.NewMemChatRepository()
	ctx := context.Background()

	if _, err := NewCoordinator(dir, state).Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}

	// a fresh coordinator over the same store continues the rotation
	id, err := NewCoordinator(dir, state).Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != 20 {
		t.Fatalf("resumed rotation picked %d, want 20", id)
	}
}

func TestNextSkipsVanishedPointer(t *testing.T) {
	dir := operatorDirectory(10, 20)
	state := chatAdapter.NewMemChatRepository()
	ctx := context.Background()

	if err := state.SetLastOperator(ctx, 999); err != nil {
		t.Fatalf("SetLastOperator: %v", err)
	}

	id, err := NewCoordinator(dir, state).Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != 10 {
		t.Fatalf("unknown pointer should restart the rotation, got %d", id)
	}
}

func TestNextFallsBackToStaff(t *testing.T) {
	dir := userAdapter.NewMemUserRepository()
	dir.Put(users.User{ID: 5, Role: "admin", IsStaff: true, IsActive: true})
	dir.Put(users.User{ID: 6, Role: "operator", IsActive: false}) // inactive, excluded

	id, err := NewCoordinator(dir, chatAdapter.NewMemChatRepository()).Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != 5 {
		t.Fatalf("staff fallback picked %d, want 5", id)
	}
}

func TestNextErrorsWithoutCandidates(t *testing.T) {
	dir := userAdapter.NewMemUserRepository()
	_, err := NewCoordinator(dir, chatAdapter.NewMemChatRepository()).Next(context.Background())
	if !errors.Is(err, chat.ErrNoOperators) {
		t.Fatalf("err = %v, want ErrNoOperators", err)
	}
}

func TestNextIsFairUnderConcurrency(t *testing.T) {
	const perOperator = 50
	operators := []int64{1, 2, 3, 4}
	dir := operatorDirectory(operators...)
	coord := NewCoordinator(dir, chatAdapter.NewMemChatRepository())

	var mu sync.Mutex
	counts := make(map[int64]int)
	var wg sync.WaitGroup
	for i := 0; i < perOperator*len(operators); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := coord.Next(context.Background())
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			mu.Lock()
			counts[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, op := range operators {
		if counts[op] != perOperator {
			t.Fatalf("operator %d assigned %d times, want %d (counts=%v)", op, counts[op], perOperator, counts)
		}
	}
}
