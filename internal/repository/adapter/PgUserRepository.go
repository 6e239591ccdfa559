package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	repository "chatgate/internal/repository/port"
)

// PgUserRepository reads user rows owned by the account subsystem.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

var _ repository.UserDirectory = (*PgUserRepository)(nil)

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*repository.User, error) {
	var u repository.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, role, is_staff, is_active
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Role, &u.IsStaff, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) ListActiveOperators(ctx context.Context) ([]repository.User, error) {
	return r.list(ctx, `
		SELECT id, username, role, is_staff, is_active
		FROM users WHERE is_active AND role = 'operator'
		ORDER BY id
	`)
}

func (r *PgUserRepository) ListActiveStaff(ctx context.Context) ([]repository.User, error) {
	return r.list(ctx, `
		SELECT id, username, role, is_staff, is_active
		FROM users WHERE is_active AND is_staff
		ORDER BY id
	`)
}

func (r *PgUserRepository) list(ctx context.Context, sql string) ([]repository.User, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []repository.User
	for rows.Next() {
		var u repository.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.IsStaff, &u.IsActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
