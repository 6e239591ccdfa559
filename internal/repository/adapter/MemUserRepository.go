package adapter

import (
	"context"
	"sort"
	"sync"

	repository "chatgate/internal/repository/port"
)

// MemUserRepository is an in-memory UserDirectory for tests and local runs.
type MemUserRepository struct {
	mu    sync.RWMutex
	users map[int64]repository.User
}

func NewMemUserRepository() *MemUserRepository {
	return &MemUserRepository{users: make(map[int64]repository.User)}
}

var _ repository.UserDirectory = (*MemUserRepository)(nil)

// Put inserts or replaces a user row.
func (r *MemUserRepository) Put(u repository.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *MemUserRepository) FindByID(_ context.Context, id int64) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *MemUserRepository) ListActiveOperators(_ context.Context) ([]repository.User, error) {
	return r.filter(func(u repository.User) bool { return u.IsActive && u.Role == "operator" }), nil
}

func (r *MemUserRepository) ListActiveStaff(_ context.Context) ([]repository.User, error) {
	return r.filter(func(u repository.User) bool { return u.IsActive && u.IsStaff }), nil
}

func (r *MemUserRepository) filter(keep func(repository.User) bool) []repository.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.User
	for _, u := range r.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
