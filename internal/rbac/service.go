package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/opsdesk/opsdesk/internal/shared"
)

// Service is the authoritative permission resolver. It computes
// effective permission sets (role baseline ∪ user overrides) and owns
// all grant mutations. Mutations for the same subject are serialized
// with a keyed mutex; resolution for the same user is collapsed with
// singleflight so a burst of stale sessions refreshes once.
type Service struct {
	repo   RepositoryPort
	epochs *EpochCounter
	locks  *shared.KeyedMutex
	audit  *shared.AuditLogger
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. The audit logger may be nil.
func NewService(repo RepositoryPort, epochs *EpochCounter, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		epochs: epochs,
		locks:  shared.NewKeyedMutex(),
		audit:  audit,
		logger: logger,
	}
}

// EffectivePermissions returns the user's effective set: the union of
// role-level grants and user-level overrides. A user with no grants gets
// an empty set, not an error; an unresolvable user id fails with
// ErrUnknownUser.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, userID)
}

// HasPermission reports membership in the user's current effective set.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	perms, err := s.repo.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// ResolveSnapshot computes the session snapshot for a user: role,
// effective permissions, and the grants epoch the resolution observed.
// The epoch is read first, so a mutation racing the resolve leaves the
// snapshot marked stale and the next request re-resolves.
func (s *Service) ResolveSnapshot(ctx context.Context, userID int64) (shared.Snapshot, error) {
	ch := s.group.DoChan("snapshot:"+strconv.FormatInt(userID, 10), func() (any, error) {
		epoch, err := s.epochs.Current(ctx)
		if err != nil {
			return nil, err
		}
		role, err := s.repo.UserRole(ctx, userID)
		if err != nil {
			return nil, err
		}
		perms, err := s.repo.EffectivePermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		return shared.Snapshot{RoleID: role.ID, Role: role.Name, Permissions: perms, Epoch: epoch}, nil
	})
	select {
	case <-ctx.Done():
		return shared.Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return shared.Snapshot{}, res.Err
		}
		return res.Val.(shared.Snapshot), nil
	}
}

// Epoch returns the current grants epoch.
func (s *Service) Epoch(ctx context.Context) (int64, error) {
	return s.epochs.Current(ctx)
}

// ListPermissions returns all permission definitions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListRoles returns all role definitions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GrantRoleLevel adds a role-level grant. Idempotent.
func (s *Service) GrantRoleLevel(ctx context.Context, actorID, roleID int64, permission string) error {
	unlock := s.locks.Lock(shared.RoleGrantKey(roleID))
	defer unlock()
	if err := s.repo.AttachRolePermission(ctx, roleID, permission); err != nil {
		return err
	}
	s.finishMutation(ctx, actorID, "grant", "role", roleID, permission)
	return nil
}

// RevokeRoleLevel removes a role-level grant. Revoking a grant the role
// does not hold is a no-op.
func (s *Service) RevokeRoleLevel(ctx context.Context, actorID, roleID int64, permission string) error {
	unlock := s.locks.Lock(shared.RoleGrantKey(roleID))
	defer unlock()
	if err := s.repo.DetachRolePermission(ctx, roleID, permission); err != nil {
		return err
	}
	s.finishMutation(ctx, actorID, "revoke", "role", roleID, permission)
	return nil
}

// GrantUserLevel adds a user-level override on top of the role baseline.
// Idempotent.
func (s *Service) GrantUserLevel(ctx context.Context, actorID, userID int64, permission string) error {
	unlock := s.locks.Lock(shared.UserGrantKey(userID))
	defer unlock()
	if err := s.repo.AttachUserPermission(ctx, userID, permission); err != nil {
		return err
	}
	s.finishMutation(ctx, actorID, "grant", "user", userID, permission)
	return nil
}

// RevokeUserLevel removes a user-level override. Only overrides can be
// revoked this way: a role-baseline permission stays until the role
// grant itself is removed or the user is reassigned.
func (s *Service) RevokeUserLevel(ctx context.Context, actorID, userID int64, permission string) error {
	unlock := s.locks.Lock(shared.UserGrantKey(userID))
	defer unlock()
	if err := s.repo.DetachUserPermission(ctx, userID, permission); err != nil {
		return err
	}
	s.finishMutation(ctx, actorID, "revoke", "user", userID, permission)
	return nil
}

// finishMutation bumps the grants epoch and records the audit trail.
// Both are best-effort: the grant itself has already committed.
func (s *Service) finishMutation(ctx context.Context, actorID int64, action, subject string, subjectID int64, permission string) {
	if _, err := s.epochs.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("bump grants epoch", slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("rbac.%s", action),
		Entity:   subject,
		EntityID: strconv.FormatInt(subjectID, 10),
		Meta:     map[string]any{"permission": permission},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record grant audit", slog.Any("error", err))
	}
}
