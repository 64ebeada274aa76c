package models

import "time"

// Subject represents an academic subject with a finite number of seats.
// Locked is never stored: every read computes it from the seat counters so
// the lock state cannot drift from the counts it is derived from.
type Subject struct {
	ID           string     `db:"id" json:"id"`
	Code         string     `db:"code" json:"code"`
	Name         string     `db:"name" json:"name"`
	TotalSlots   int        `db:"total_slots" json:"total_slots"`
	CurrentSlots int        `db:"current_slots" json:"current_slots"`
	Active       bool       `db:"active" json:"active"`
	Locked       bool       `db:"locked" json:"locked"`
	RetiredAt    *time.Time `db:"retired_at" json:"retired_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Retired reports whether the subject has been soft-deleted.
func (s *Subject) Retired() bool {
	return s.RetiredAt != nil
}

// Available reports whether the subject can accept a new enrollment.
func (s *Subject) Available() bool {
	return s.Active && s.RetiredAt == nil && !s.Locked
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Search         string
	Active         *bool
	IncludeRetired bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
