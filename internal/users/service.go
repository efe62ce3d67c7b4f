package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/opsdesk/opsdesk/internal/shared"
)

// SweepEnqueuer schedules session teardown for deactivated accounts.
// Implemented by the jobs client.
type SweepEnqueuer interface {
	EnqueueDeactivationSweep(ctx context.Context, userID int64) error
}

// EpochBumper advances the grants epoch so live sessions re-resolve
// their permission snapshots. Implemented by the rbac epoch counter.
type EpochBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// Service implements account management.
type Service struct {
	repo   RepositoryPort
	sweeps SweepEnqueuer
	epochs EpochBumper
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service. sweeps, epochs and audit may be nil.
func NewService(repo RepositoryPort, sweeps SweepEnqueuer, epochs EpochBumper, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, sweeps: sweeps, epochs: epochs, audit: audit, logger: logger}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Create provisions an account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, actorID int64, email, fullName, password string, roleID int64) (User, error) {
	email = strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
	fullName = strings.TrimSpace(norm.NFC.String(fullName))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Create(ctx, email, fullName, string(hash), roleID)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "users.create", user.ID)
	return user, nil
}

// Deactivate switches an account off. The session gate rejects the user
// on their next request; the enqueued sweep tears down the already
// issued sessions.
func (s *Service) Deactivate(ctx context.Context, actorID, userID int64) error {
	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	if s.sweeps != nil {
		if err := s.sweeps.EnqueueDeactivationSweep(ctx, userID); err != nil {
			s.logger.Warn("enqueue deactivation sweep", slog.Any("error", err))
		}
	}
	s.record(ctx, actorID, "users.deactivate", userID)
	return nil
}

// Activate switches an account back on.
func (s *Service) Activate(ctx context.Context, actorID, userID int64) error {
	if err := s.repo.SetActive(ctx, userID, true); err != nil {
		return err
	}
	s.record(ctx, actorID, "users.activate", userID)
	return nil
}

// AssignRole moves an account to another role and bumps the grants
// epoch so live sessions re-resolve their snapshots.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	if s.epochs != nil {
		if _, err := s.epochs.Bump(ctx); err != nil {
			s.logger.Warn("bump grants epoch", slog.Any("error", err))
		}
	}
	s.record(ctx, actorID, "users.assign_role", userID)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
	})
	if err != nil {
		s.logger.Warn("record user audit", slog.Any("error", err))
	}
}
