package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/opsdesk/opsdesk/internal/shared"
)

// Service implements credential verification.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// NormalizeEmail canonicalizes an email for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// Authenticate verifies credentials. Unknown email, wrong password and a
// deactivated account all collapse into ErrInvalidCredentials so the
// response gives away nothing about which check failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// burn a comparison anyway to keep timing uniform
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// UserByID loads a user for the per-request active check.
func (s *Service) UserByID(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// RegisterSession mirrors an issued session into the registry. Failure
// is logged, not fatal: the Redis store remains authoritative.
func (s *Service) RegisterSession(ctx context.Context, rec SessionRecord) {
	if err := s.repo.RegisterSession(ctx, rec); err != nil {
		s.logger.Warn("register session", slog.Any("error", err))
	}
}

// RemoveSession drops a session from the registry.
func (s *Service) RemoveSession(ctx context.Context, sessionID string) {
	if err := s.repo.RemoveSession(ctx, sessionID); err != nil {
		s.logger.Warn("remove session", slog.Any("error", err))
	}
}
