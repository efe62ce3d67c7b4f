// Package roles manages role definitions. Grant wiring lives in the
// rbac package; this one only owns the role records themselves.
package roles

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
)

// Role is a named permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RepositoryPort defines persistence operations for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	Create(ctx context.Context, name, description string) (Role, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all roles ordered by id.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Create inserts a role.
func (r *Repository) Create(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id, name, description, created_at, updated_at`, name, description)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, httpx.ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

var _ RepositoryPort = (*Repository)(nil)

// Service implements role management.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Create adds a role. New roles start with no grants; permissions are
// attached afterwards through the grant endpoints.
func (s *Service) Create(ctx context.Context, name, description string) (Role, error) {
	return s.repo.Create(ctx, name, description)
}
