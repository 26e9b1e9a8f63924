package types

import "time"

// Entity carries the bookkeeping timestamps embedded in stored records.
// Timestamps come from the caller; the engine never reads the wall clock.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Timestamp normalizes t to UTC at millisecond precision, the finest
// resolution every store backend keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NewEntity stamps both timestamps with now.
func NewEntity(now time.Time) Entity {
	now = Timestamp(now)
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch moves UpdatedAt to now. CreatedAt never changes.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = Timestamp(now)
}
