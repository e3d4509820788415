package models

import "time"

// Timestamps holds creation and mutation times. They are written by the caller's
// clock, so gorm's automatic time tracking is off.
type Timestamps struct {
	CreatedAt time.Time `gorm:"autoCreateTime:false;not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;not null" json:"updatedAt"`
}

// Touch advances UpdatedAt to at, or by one microsecond when at does not move
// forward. Microseconds keep the ordering after a round trip through Postgres.
func (t *Timestamps) Touch(at time.Time) {
	at = at.UTC().Truncate(time.Microsecond)
	if !at.After(t.UpdatedAt) {
		at = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = at
}
