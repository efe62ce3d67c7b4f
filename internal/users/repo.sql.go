package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
)

// RepositoryPort defines persistence operations for account management.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, email, fullName, passwordHash string, roleID int64) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	AssignRole(ctx context.Context, id, roleID int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all accounts with their role names.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.full_name, u.role_id, r.name, u.is_active, u.created_at, u.updated_at
		FROM users u
		JOIN roles r ON r.id = u.role_id
		ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.RoleID, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts an account and returns it.
func (r *Repository) Create(ctx context.Context, email, fullName, passwordHash string, roleID int64) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, password_hash, role_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, now(), now())
		RETURNING id, email, full_name, role_id, is_active, created_at, updated_at`,
		email, fullName, passwordHash, roleID)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.RoleID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, mapPgError(err)
	}
	return u, nil
}

// SetActive flips the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// AssignRole moves the account to a different role.
func (r *Repository) AssignRole(ctx context.Context, id, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = now() WHERE id = $1`, id, roleID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return httpx.ErrDuplicate
		case "23503":
			return httpx.ErrValidation
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return httpx.ErrNotFound
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
