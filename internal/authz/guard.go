package authz

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GuardState tracks a session through forced termination.
type GuardState int

const (
	GuardActive GuardState = iota
	GuardPendingLogout
	GuardTerminated
)

func (s GuardState) String() string {
	switch s {
	case GuardActive:
		return "active"
	case GuardPendingLogout:
		return "pending_logout"
	case GuardTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionRevoker invalidates an authenticated session. Implemented by the
// auth service; the guard never talks to the store or transport itself.
type SessionRevoker interface {
	RevokeSession(ctx context.Context, sessionID string) error
}

// Guard terminates sessions whose principal resolves to the blocked role.
// Each session moves ACTIVE -> PENDING_LOGOUT -> TERMINATED; the delay
// before revocation exists only so a notice can reach the client first.
// Terminated entries are evicted immediately, so the state map holds only
// sessions with a pending logout.
type Guard struct {
	revoker SessionRevoker
	delay   time.Duration
	logger  *slog.Logger
	notify  func(sessionID, userID string)

	mu     sync.Mutex
	states map[string]GuardState
}

// NewGuard constructs a Guard. notify may be nil.
func NewGuard(revoker SessionRevoker, delay time.Duration, logger *slog.Logger, notify func(sessionID, userID string)) *Guard {
	return &Guard{
		revoker: revoker,
		delay:   delay,
		logger:  logger,
		notify:  notify,
		states:  make(map[string]GuardState),
	}
}

// OnPrincipalChanged feeds a fresh role resolution for a live session into
// the guard. Called on login, session restore and on profile change
// notifications. Non-blocked resolutions reset a still-active entry.
func (g *Guard) OnPrincipalChanged(ctx context.Context, sessionID, userID, effectiveRole string) {
	if sessionID == "" {
		return
	}
	if effectiveRole != RoleBlocked {
		g.mu.Lock()
		if g.states[sessionID] == GuardActive {
			delete(g.states, sessionID)
		}
		g.mu.Unlock()
		return
	}

	g.mu.Lock()
	if g.states[sessionID] != GuardActive {
		g.mu.Unlock()
		return
	}
	g.states[sessionID] = GuardPendingLogout
	g.mu.Unlock()

	if g.notify != nil {
		g.notify(sessionID, userID)
	}
	if g.logger != nil {
		g.logger.Info("blocking session",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID))
	}

	time.AfterFunc(g.delay, func() {
		// The originating request context is long gone by now.
		revokeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.revoker.RevokeSession(revokeCtx, sessionID); err != nil && g.logger != nil {
			g.logger.Error("revoke blocked session",
				slog.String("session_id", sessionID),
				slog.Any("error", err))
		}
		if g.logger != nil {
			g.logger.Info("session terminated",
				slog.String("session_id", sessionID),
				slog.String("state", GuardTerminated.String()))
		}
		// The revoked session can never come back, so its entry is dropped
		// rather than parked in GuardTerminated; the map stays bounded by
		// the number of currently pending logouts.
		g.Forget(sessionID)
	})
}

// State reports the guard state for a session.
func (g *Guard) State(sessionID string) GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[sessionID]
}

// Forget drops bookkeeping for a session that ended, whether through normal
// logout or forced revocation.
func (g *Guard) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.states, sessionID)
	g.mu.Unlock()
}
