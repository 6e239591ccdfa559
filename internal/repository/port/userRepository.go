package repository

import "context"

// User is the minimal projection of an account the chat layer needs.
// Authentication lives elsewhere; these rows exist for role lookups only.
type User struct {
	ID       int64
	Username string
	Role     string // "customer", "operator", "admin"
	IsStaff  bool
	IsActive bool
}

// IsOperator reports whether the user may work the support queue.
func (u User) IsOperator() bool {
	return u.Role == "operator" || u.IsStaff
}

// UserDirectory is the read-side contract over the user store.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	// ListActiveOperators returns active users with the operator role,
	// ordered by id.
	ListActiveOperators(ctx context.Context) ([]User, error)
	// ListActiveStaff is the fallback pool when no operators exist.
	ListActiveStaff(ctx context.Context) ([]User, error)
}
