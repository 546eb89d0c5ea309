package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicstack/grievance-backend/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	if id <= 0 {
		return model.User{}, fmt.Errorf("invalid user id")
	}

	var u model.User
	err := r.pool.QueryRow(ctx, `
SELECT id, name, email, role, department, is_verified, created_at, updated_at
FROM users
WHERE id = $1
`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}

// FindDepartmentAdmin picks the verified admin for a department, if any.
func (r *UserRepo) FindDepartmentAdmin(ctx context.Context, department string) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(department) == "" {
		return model.User{}, fmt.Errorf("department is required")
	}

	var u model.User
	err := r.pool.QueryRow(ctx, `
SELECT id, name, email, role, department, is_verified, created_at, updated_at
FROM users
WHERE role = 'DEPARTMENT_ADMIN' AND department = $1 AND is_verified = TRUE
ORDER BY id ASC
LIMIT 1
`, department).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("select department admin: %w", err)
	}

	return u, nil
}
