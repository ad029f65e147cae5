package authz

import (
	"fmt"
	"time"
)

// Well-known roles. Any other non-empty string is treated as a custom role
// with no implicit privileges.
const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleBlocked = "blocked"
)

// Resource identifies one of the governed tables.
type Resource string

const (
	// ResourceProduct covers rows in the product catalog.
	ResourceProduct Resource = "product"
	// ResourcePriceHistory covers per-product price points.
	ResourcePriceHistory Resource = "pricehist"
)

// Resources lists every governed resource.
func Resources() []Resource {
	return []Resource{ResourceProduct, ResourcePriceHistory}
}

// ParseResource validates an externally supplied resource name.
func ParseResource(s string) (Resource, error) {
	switch Resource(s) {
	case ResourceProduct:
		return ResourceProduct, nil
	case ResourcePriceHistory:
		return ResourcePriceHistory, nil
	default:
		return "", fmt.Errorf("authz: unknown resource %q", s)
	}
}

// Operation is the closed set of mutating capabilities a grant can carry.
type Operation int

const (
	OpAdd Operation = iota
	OpEdit
	OpDelete
)

// ParseOperation validates an externally supplied operation name.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "add":
		return OpAdd, nil
	case "edit":
		return OpEdit, nil
	case "delete":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("authz: unknown operation %q", s)
	}
}

func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpEdit:
		return "edit"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Principal describes the authenticated actor a decision is made for.
type Principal struct {
	ID    string
	Email string
	Role  string
}

// Grant is one user's capability record for one resource. The (UserID,
// Resource) pair is the natural key; at most one row exists per pair.
type Grant struct {
	UserID    string    `json:"user_id"`
	Resource  Resource  `json:"resource"`
	CanAdd    bool      `json:"can_add"`
	CanEdit   bool      `json:"can_edit"`
	CanDelete bool      `json:"can_delete"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Allows reports whether the grant covers the given operation. The mapping
// from operation to field is explicit; there is no string-keyed field access.
func (g Grant) Allows(op Operation) bool {
	switch op {
	case OpAdd:
		return g.CanAdd
	case OpEdit:
		return g.CanEdit
	case OpDelete:
		return g.CanDelete
	default:
		return false
	}
}

// Decision is the ephemeral result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
