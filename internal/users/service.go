package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// RepositoryPort defines data access methods for user management.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateRole(ctx context.Context, id, role string) (User, error)
}

// Service handles user management business logic.
type Service struct {
	repo       RepositoryPort
	adminEmail string
	publisher  feed.Publisher
	audit      *shared.AuditLogger
	logger     *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, adminEmail string, publisher feed.Publisher, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		adminEmail: authz.NormalizeEmail(adminEmail),
		publisher:  publisher,
		audit:      audit,
		logger:     logger,
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ChangeRole sets a user's role. The fixed administrator cannot be changed:
// the identity resolver would immediately rewrite any other value, so the
// edit is rejected up front instead of silently reverting. Custom role names
// are allowed; they carry no implicit privileges.
func (s *Service) ChangeRole(ctx context.Context, actorID, id, role string) (User, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return User{}, fmt.Errorf("%w: role is required", httpx.ErrValidation)
	}
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if authz.NormalizeEmail(current.Email) == s.adminEmail {
		return User{}, fmt.Errorf("%w: the fixed administrator role cannot be changed", httpx.ErrValidation)
	}
	if role == authz.RoleAdmin {
		// Only the fixed administrator email may hold role admin durably;
		// any other assignment would be demoted on the next profile load.
		return User{}, fmt.Errorf("%w: role admin is reserved for the fixed administrator", httpx.ErrValidation)
	}
	updated, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		return User{}, err
	}
	s.publishUpdate(ctx, current, updated)
	s.record(ctx, actorID, "user.role_change", updated.ID, map[string]any{"from": current.Role, "to": role})
	return updated, nil
}

// Block moves a user into the terminal blocked role. Live sessions are
// terminated by the blocked-account guard once the change notification
// propagates.
func (s *Service) Block(ctx context.Context, actorID, id string) (User, error) {
	return s.ChangeRole(ctx, actorID, id, authz.RoleBlocked)
}

// Unblock restores a blocked user to the plain user role.
func (s *Service) Unblock(ctx context.Context, actorID, id string) (User, error) {
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if current.Role != authz.RoleBlocked {
		return User{}, fmt.Errorf("%w: user is not blocked", httpx.ErrValidation)
	}
	return s.ChangeRole(ctx, actorID, id, authz.RoleUser)
}

func (s *Service) publishUpdate(ctx context.Context, old, updated User) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, feed.Event{
		Type:  feed.EventUpdate,
		Table: feed.TableProfiles,
		Old:   old,
		New:   updated,
	}); err != nil && s.logger != nil {
		s.logger.Warn("publish profile update", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "profiles",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit user change", slog.Any("error", err))
	}
}
