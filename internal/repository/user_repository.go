package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pathpatrol/internal/model"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash, full_name, role, created_at, is_active, phone, address`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user with a lowercased email. Duplicate usernames or
// emails (in any case) yield model.ErrIntegrity.
func (r *UserRepository) Create(ctx context.Context, user *model.User) (int64, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	query := `
		INSERT INTO users (username, email, password_hash, full_name, role, is_active, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Role,
		user.IsActive,
		user.Phone,
		user.Address,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return 0, translate(err)
	}
	return user.ID, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role model.Role) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
}

func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
}

// RoleCounts returns per-role and per-activity user counts.
func (r *UserRepository) RoleCounts(ctx context.Context) (*model.UserStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT role, is_active, COUNT(*) FROM users GROUP BY role, is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &model.UserStats{ByRole: make(map[model.Role]int)}
	for rows.Next() {
		var role model.Role
		var active bool
		var n int
		if err := rows.Scan(&role, &active, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		stats.ByRole[role] += n
		if active {
			stats.Active += n
		} else {
			stats.Inactive += n
		}
	}
	return stats, rows.Err()
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user: %w", model.ErrNotFound)
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	var phone, address sql.NullString

	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Role,
		&u.CreatedAt,
		&u.IsActive,
		&phone,
		&address,
	)
	if err != nil {
		return nil, err
	}
	if phone.Valid {
		u.Phone = &phone.String
	}
	if address.Valid {
		u.Address = &address.String
	}
	return u, nil
}

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", model.ErrIntegrity, pqErr.Constraint)
	}
	return err
}
