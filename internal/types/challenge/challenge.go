package challenge

import (
	"time"

	"github.com/google/uuid"
)

type ChallengeType string

const (
	TypeDailyDistance ChallengeType = "daily_distance"
	TypeTotalDistance ChallengeType = "total_distance"
	TypeRunStreak     ChallengeType = "run_streak"
	TypeCustom        ChallengeType = "custom"
)

type Challenge struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	Title          string        `json:"title" db:"title"`
	Description    *string       `json:"description" db:"description"`
	Type           ChallengeType `json:"challenge_type" db:"challenge_type"`
	RequiredPerDay float64       `json:"required_per_day" db:"required_per_day"`
	StartDate      time.Time     `json:"start_date" db:"start_date"`
	EndDate        time.Time     `json:"end_date" db:"end_date"`
	IsPublic       bool          `json:"is_public" db:"is_public"`
	IsActive       bool          `json:"is_active" db:"is_active"`
	CreatedBy      uuid.UUID     `json:"created_by" db:"created_by"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// WindowDays is the number of calendar days the challenge spans, inclusive.
func (c *Challenge) WindowDays() int {
	return int(dateOnly(c.EndDate).Sub(dateOnly(c.StartDate)).Hours()/24) + 1
}

// Contains reports whether d falls inside the challenge window.
func (c *Challenge) Contains(d time.Time) bool {
	day := dateOnly(d)
	return !day.Before(dateOnly(c.StartDate)) && !day.After(dateOnly(c.EndDate))
}

// Ended reports whether now falls past the last day of the window. The end
// date is inclusive: the challenge runs through the end of that calendar day.
func (c *Challenge) Ended(now time.Time) bool {
	return dateOnly(now).After(dateOnly(c.EndDate))
}

type Progress struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ChallengeID    uuid.UUID  `json:"challenge_id" db:"challenge_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	DaysCompleted  int        `json:"days_completed" db:"days_completed"`
	TotalDistance  float64    `json:"total_distance" db:"total_distance"`
	CurrentStreak  int        `json:"current_streak" db:"current_streak"`
	LongestStreak  int        `json:"longest_streak" db:"longest_streak"`
	LastRunDate    *time.Time `json:"last_run_date" db:"last_run_date"`
	LastStreakDate *time.Time `json:"last_streak_date" db:"last_streak_date"`
	IsComplete     bool       `json:"is_complete" db:"is_complete"`
	JoinedAt       time.Time  `json:"joined_at" db:"joined_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateChallengeRequest struct {
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Type           ChallengeType `json:"challenge_type"`
	RequiredPerDay float64       `json:"required_per_day"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	IsPublic       bool          `json:"is_public"`
}

type LeaderboardEntry struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	AvatarURL     *string   `json:"avatar_url" db:"avatar_url"`
	TotalDistance float64   `json:"total_distance" db:"total_distance"`
	CurrentStreak int       `json:"current_streak" db:"current_streak"`
	IsComplete    bool      `json:"is_complete" db:"is_complete"`
	Rank          int       `json:"rank"`
}

type Leaderboard struct {
	ChallengeID uuid.UUID           `json:"challenge_id"`
	Entries     []*LeaderboardEntry `json:"entries"`
	TotalUsers  int                 `json:"total_users"`
}
