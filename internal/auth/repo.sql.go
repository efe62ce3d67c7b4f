package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/opsdesk/internal/shared"
)

// RepositoryPort defines persistence operations for authentication.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	RegisterSession(ctx context.Context, rec SessionRecord) error
	RemoveSession(ctx context.Context, sessionID string) error
	SessionsForUser(ctx context.Context, userID int64) ([]SessionRecord, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, full_name, password_hash, role_id, is_active, created_at, updated_at`

// FindByEmail returns the user holding the given email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID returns the user with the given id.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// RegisterSession records a freshly issued session in the registry.
func (r *Repository) RegisterSession(ctx context.Context, rec SessionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		rec.ID, rec.UserID, rec.ExpiresAt)
	return err
}

// RemoveSession drops a session from the registry.
func (r *Repository) RemoveSession(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}

// SessionsForUser lists registered sessions for one user, newest first.
func (r *Repository) SessionsForUser(ctx context.Context, userID int64) ([]SessionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, created_at, expires_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteExpiredSessions prunes registry rows whose expiry passed.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.RoleID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

var _ RepositoryPort = (*Repository)(nil)
