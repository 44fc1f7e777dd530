package dispatch

import "time"

// Entity carries the bookkeeping timestamps embedded by every persisted
// record. Stores refresh UpdatedAt on each write.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntityAt returns an Entity stamped with the given creation time.
// Callers pass the injected clock's now rather than the wall clock.
func NewEntityAt(now time.Time) Entity {
	return Entity{CreatedAt: now, UpdatedAt: now}
}
