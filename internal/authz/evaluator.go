package authz

import (
	"context"
	"log/slog"
)

// Evaluator is the single decision point consulted before every mutating
// operation on a governed resource. It performs no I/O beyond the grant
// lookup, so it is safe to call on every request.
type Evaluator struct {
	adminEmail string
	store      GrantStore
	logger     *slog.Logger
}

// NewEvaluator constructs an Evaluator. adminEmail is the fixed
// administrator identity, injected once at startup.
func NewEvaluator(adminEmail string, store GrantStore, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		adminEmail: NormalizeEmail(adminEmail),
		store:      store,
		logger:     logger,
	}
}

// AdminEmail returns the configured fixed administrator email.
func (e *Evaluator) AdminEmail() string {
	return e.adminEmail
}

// IsFixedAdmin reports whether the email belongs to the fixed administrator.
func (e *Evaluator) IsFixedAdmin(email string) bool {
	return NormalizeEmail(email) == e.adminEmail
}

// IsAdmin reports whether the principal has full privileges: either the
// fixed administrator or any principal whose role resolves to admin. Role
// admin is symmetric with the fixed administrator on every resource.
func (e *Evaluator) IsAdmin(p Principal) bool {
	return e.IsFixedAdmin(p.Email) || p.Role == RoleAdmin
}

// Authorize decides whether the principal may perform op on resource.
// The check fails closed: a blocked role, a missing grant or a store read
// failure all deny.
func (e *Evaluator) Authorize(ctx context.Context, p Principal, resource Resource, op Operation) Decision {
	if e.IsFixedAdmin(p.Email) {
		return allow()
	}
	if p.Role == RoleAdmin {
		return allow()
	}
	if p.Role == RoleBlocked {
		return deny("account blocked")
	}
	grant, err := e.store.GetGrant(ctx, p.ID, resource)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("grant lookup failed, denying",
				slog.String("user_id", p.ID),
				slog.String("resource", string(resource)),
				slog.Any("error", err))
		}
		return deny("permission check unavailable")
	}
	if !grant.Allows(op) {
		return deny("no " + op.String() + " permission on " + string(resource))
	}
	return allow()
}
