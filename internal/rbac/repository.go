package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines persistence operations for grant state.
type RepositoryPort interface {
	UserRole(ctx context.Context, userID int64) (Role, error)
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRoles(ctx context.Context) ([]Role, error)
	AttachRolePermission(ctx context.Context, roleID int64, permission string) error
	DetachRolePermission(ctx context.Context, roleID int64, permission string) error
	AttachUserPermission(ctx context.Context, userID int64, permission string) error
	DetachUserPermission(ctx context.Context, userID int64, permission string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserRole returns the role held by the user.
func (r *Repository) UserRole(ctx context.Context, userID int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`, userID)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrUnknownUser
		}
		return Role{}, err
	}
	return role, nil
}

// EffectivePermissions returns the union of role-level grants and
// user-level overrides, sorted and deduplicated by the UNION itself.
func (r *Repository) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if _, err := r.UserRole(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN users u ON u.role_id = rp.role_id
		WHERE u.id = $1
		UNION
		SELECT p.name
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY 1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListPermissions returns all permission definitions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListRoles returns all role definitions ordered by id.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// AttachRolePermission adds a role-level grant. Granting an already-held
// permission is a no-op.
func (r *Repository) AttachRolePermission(ctx context.Context, roleID int64, permission string) error {
	permID, err := r.permissionID(ctx, permission)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permID)
	return mapSubjectFK(err, ErrUnknownRole)
}

// DetachRolePermission removes a role-level grant. Revoking a non-held
// permission is a no-op.
func (r *Repository) DetachRolePermission(ctx context.Context, roleID int64, permission string) error {
	permID, err := r.permissionID(ctx, permission)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permID)
	return err
}

// AttachUserPermission adds a user-level override.
func (r *Repository) AttachUserPermission(ctx context.Context, userID int64, permission string) error {
	permID, err := r.permissionID(ctx, permission)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, permission_id) DO NOTHING`, userID, permID)
	return mapSubjectFK(err, ErrUnknownUser)
}

// DetachUserPermission removes a user-level override.
func (r *Repository) DetachUserPermission(ctx context.Context, userID int64, permission string) error {
	permID, err := r.permissionID(ctx, permission)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permID)
	return err
}

func (r *Repository) permissionID(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, `SELECT id FROM permissions WHERE name = $1`, name).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownPermission
		}
		return 0, err
	}
	return id, nil
}

// mapSubjectFK converts a foreign-key violation on the subject column
// into the matching unknown-subject error.
func mapSubjectFK(err error, unknown error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return unknown
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
