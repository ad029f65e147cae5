package feed

// EventType mirrors the row-level change kinds delivered to subscribers.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Watched table names. Every mutation on these publishes an event.
const (
	TableProfiles    = "profiles"
	TablePermissions = "user_permissions"
	TableProduct     = "product"
	TablePriceHist   = "pricehist"
)

// Event is one change notification. Old carries the pre-image for updates
// and deletes, New the post-image for inserts and updates. Delivery is
// best-effort, roughly in commit order, with no ordering guarantee across
// tables.
type Event struct {
	Type  EventType `json:"event_type"`
	Table string    `json:"table"`
	Old   any       `json:"old,omitempty"`
	New   any       `json:"new,omitempty"`
}

// WatchedTables lists every table a client may subscribe to.
func WatchedTables() []string {
	return []string{TableProfiles, TablePermissions, TableProduct, TablePriceHist}
}

// IsWatched reports whether the table name is subscribable.
func IsWatched(table string) bool {
	switch table {
	case TableProfiles, TablePermissions, TableProduct, TablePriceHist:
		return true
	default:
		return false
	}
}
