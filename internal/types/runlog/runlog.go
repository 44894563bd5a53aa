package runlog

import (
	"time"

	"github.com/google/uuid"
)

type RunLog struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	ShoeID      *uuid.UUID `json:"shoe_id" db:"shoe_id"`
	RunDate     time.Time  `json:"run_date" db:"run_date"`
	DistanceKm  float64    `json:"distance_km" db:"distance_km"`
	DurationSec *int       `json:"duration_sec" db:"duration_sec"`
	Notes       *string    `json:"notes" db:"notes"`
	LoggedAt    time.Time  `json:"logged_at" db:"logged_at"`
	// Derived at read time, min/km string like "5:42".
	Pace string `json:"pace,omitempty"`
}

type LogRunRequest struct {
	ShoeID      *uuid.UUID `json:"shoe_id"`
	RunDate     time.Time  `json:"run_date"`
	DistanceKm  float64    `json:"distance_km"`
	DurationSec *int       `json:"duration_sec"`
	Notes       string     `json:"notes"`
}

type Shoe struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Brand     *string   `json:"brand" db:"brand"`
	Retired   bool      `json:"retired" db:"retired"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	// SUM of run_logs.distance_km for the shoe, never a stored counter.
	MileageKm float64 `json:"mileage_km"`
}

type DaysStat struct {
	Period     string  `json:"period"`
	DaysRun    int     `json:"days_run"`
	TotalDays  int     `json:"total_days"`
	DistanceKm float64 `json:"distance_km"`
}
