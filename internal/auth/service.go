package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Service wraps authentication business rules: credential checks, profile
// creation, role resolution with drift correction, and session bookkeeping.
type Service struct {
	repo       Repository
	adminEmail string
	sessions   *shared.SessionManager
	publisher  feed.Publisher
	logger     *slog.Logger
}

// NewService constructs a new Service. adminEmail is the fixed administrator
// identity injected at startup.
func NewService(repo Repository, adminEmail string, sessions *shared.SessionManager, publisher feed.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		adminEmail: authz.NormalizeEmail(adminEmail),
		sessions:   sessions,
		publisher:  publisher,
		logger:     logger,
	}
}

// SignUp registers a new account. The stored role is pre-resolved so the
// fixed administrator signs up as admin and everyone else as user.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*Profile, error) {
	email = authz.NormalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	role := authz.RoleUser
	if email == s.adminEmail {
		role = authz.RoleAdmin
	}
	profile := &Profile{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	s.publish(ctx, feed.Event{Type: feed.EventInsert, Table: feed.TableProfiles, New: publicProfile(profile)})
	return profile, nil
}

// Authenticate validates credentials and resolves the effective role. A
// principal that resolves to blocked is denied here, before any session
// exists. Credential failures are indistinguishable from unknown accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Profile, error) {
	profile, err := s.repo.FindByEmail(ctx, authz.NormalizeEmail(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	effective := s.ResolveAndCorrect(ctx, profile)
	if effective == authz.RoleBlocked {
		return nil, shared.ErrAccountBlocked
	}
	profile.Role = effective
	return profile, nil
}

// ResolveAndCorrect runs the identity resolver over the stored role and
// persists any correction. The write is fire-and-forget: on failure the
// in-memory role is still used and the drift is retried on the next load.
func (s *Service) ResolveAndCorrect(ctx context.Context, profile *Profile) string {
	res := authz.ResolveRole(profile.Role, profile.Email, s.adminEmail)
	if res.CorrectionNeeded {
		if err := s.repo.UpdateRole(ctx, profile.ID, res.CorrectedRole); err != nil {
			if s.logger != nil {
				s.logger.Warn("profile drift correction failed",
					slog.String("user_id", profile.ID),
					slog.String("corrected_role", res.CorrectedRole),
					slog.Any("error", err))
			}
		} else {
			old := publicProfile(profile)
			profile.Role = res.CorrectedRole
			s.publish(ctx, feed.Event{Type: feed.EventUpdate, Table: feed.TableProfiles, Old: old, New: publicProfile(profile)})
		}
	}
	return res.EffectiveRole
}

// LoadPrincipal re-resolves the principal for an established session.
func (s *Service) LoadPrincipal(ctx context.Context, userID string) (authz.Principal, error) {
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return authz.Principal{}, err
	}
	effective := s.ResolveAndCorrect(ctx, profile)
	return authz.Principal{ID: profile.ID, Email: profile.Email, Role: effective}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RevokeSession invalidates a session in both the session store and the
// database. Satisfies the blocked-account guard's revoker contract.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	storeErr := s.sessions.DestroyByID(ctx, sessionID)
	dbErr := s.repo.DeleteSession(ctx, sessionID)
	return errors.Join(storeErr, dbErr)
}

// SessionIDsByUser exposes live sessions for a user so a block can reach
// every one of them.
func (s *Service) SessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	return s.repo.SessionIDsByUser(ctx, userID)
}

// PurgeExpiredSessions removes session rows past their expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, now)
}

func (s *Service) publish(ctx context.Context, event feed.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("publish profile event", slog.Any("error", err))
	}
}

// publicProfile strips credentials before a profile leaves the service.
func publicProfile(p *Profile) map[string]any {
	return map[string]any{
		"id":    p.ID,
		"email": p.Email,
		"name":  p.Name,
		"role":  p.Role,
	}
}

var _ authz.SessionRevoker = (*Service)(nil)
