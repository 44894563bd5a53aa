package run

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"runCrewAPI/internal/apperr"
)

type AttendanceStatus string

const (
	StatusGoing    AttendanceStatus = "going"
	StatusMaybe    AttendanceStatus = "maybe"
	StatusNotGoing AttendanceStatus = "not_going"
)

// ParseStatus accepts the status as it crosses the wire. Matching is
// case-insensitive, anything outside the three known values is rejected.
func ParseStatus(s string) (AttendanceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "going":
		return StatusGoing, nil
	case "maybe":
		return StatusMaybe, nil
	case "not_going", "notgoing":
		return StatusNotGoing, nil
	default:
		return "", apperr.BadRequest("invalid status %q", s)
	}
}

type ScheduledRun struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	GroupID     uuid.UUID  `json:"group_id" db:"group_id"`
	AuthorID    uuid.UUID  `json:"author_id" db:"author_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	RunAt       *time.Time `json:"run_at" db:"run_at"`
	Location    *string    `json:"location" db:"location"`
	Pace        *string    `json:"pace" db:"pace"`
	DistanceKm  *float64   `json:"distance_km" db:"distance_km"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at" db:"updated_at"`
	// Informational only, computed at read time.
	IsUpcoming    bool `json:"is_upcoming"`
	DaysRemaining int  `json:"days_remaining"`
}

// ComputeDerived fills IsUpcoming and DaysRemaining relative to now.
func (r *ScheduledRun) ComputeDerived(now time.Time) {
	r.IsUpcoming = r.RunAt != nil && r.RunAt.After(now)
	if r.IsUpcoming {
		r.DaysRemaining = int(r.RunAt.Sub(now).Hours() / 24)
	} else {
		r.DaysRemaining = 0
	}
}

type CreateRunRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	RunAt       *time.Time `json:"run_at"`
	Location    string     `json:"location"`
	Pace        string     `json:"pace"`
	DistanceKm  *float64   `json:"distance_km"`
}

type Attendance struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	RunID     uuid.UUID        `json:"run_id" db:"run_id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	Status    AttendanceStatus `json:"status" db:"status"`
	Notes     *string          `json:"notes" db:"notes"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time       `json:"updated_at" db:"updated_at"`
}

type AttendanceSummary struct {
	Going    int `json:"going"`
	Maybe    int `json:"maybe"`
	NotGoing int `json:"not_going"`
}

func (s AttendanceSummary) Total() int {
	return s.Going + s.Maybe + s.NotGoing
}
