// Package papers manages the document records the back office tracks.
// It is the representative guarded resource: reads sit behind
// papers.view, writes behind papers.edit.
package papers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
)

// Paper is a tracked document.
type Paper struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RepositoryPort defines persistence operations for papers.
type RepositoryPort interface {
	List(ctx context.Context) ([]Paper, error)
	Get(ctx context.Context, id int64) (Paper, error)
	Create(ctx context.Context, p Paper) (Paper, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paperColumns = `id, title, reference, status, owner_id, created_at, updated_at`

// List returns all papers, newest first.
func (r *Repository) List(ctx context.Context) ([]Paper, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paperColumns+` FROM papers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Paper
	for rows.Next() {
		var p Paper
		if err := rows.Scan(&p.ID, &p.Title, &p.Reference, &p.Status, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one paper.
func (r *Repository) Get(ctx context.Context, id int64) (Paper, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = $1`, id)
	var p Paper
	if err := row.Scan(&p.ID, &p.Title, &p.Reference, &p.Status, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Paper{}, httpx.ErrNotFound
		}
		return Paper{}, err
	}
	return p, nil
}

// Create inserts a paper.
func (r *Repository) Create(ctx context.Context, p Paper) (Paper, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO papers (title, reference, status, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+paperColumns,
		p.Title, p.Reference, p.Status, p.OwnerID)
	var out Paper
	if err := row.Scan(&out.ID, &out.Title, &out.Reference, &out.Status, &out.OwnerID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Paper{}, err
	}
	return out, nil
}

// UpdateStatus moves a paper to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE papers SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)

// Service implements paper management.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns all papers.
func (s *Service) List(ctx context.Context) ([]Paper, error) {
	return s.repo.List(ctx)
}

// Get returns one paper.
func (s *Service) Get(ctx context.Context, id int64) (Paper, error) {
	return s.repo.Get(ctx, id)
}

// Create records a new paper owned by the acting user.
func (s *Service) Create(ctx context.Context, ownerID int64, title, reference string) (Paper, error) {
	return s.repo.Create(ctx, Paper{
		Title:     title,
		Reference: reference,
		Status:    "draft",
		OwnerID:   ownerID,
	})
}

// UpdateStatus transitions a paper.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) error {
	return s.repo.UpdateStatus(ctx, id, status)
}
