package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func streakChallenge(days int) *Challenge {
	return &Challenge{
		Type:      TypeRunStreak,
		StartDate: day(2026, 3, 1),
		EndDate:   day(2026, 3, days),
	}
}

func TestApplyRun_StreakWithGap(t *testing.T) {
	c := streakChallenge(31)
	p := &Progress{}
	now := time.Now()

	// Two consecutive days, then a gap, then one more run.
	ApplyRun(p, c, day(2026, 3, 1), 5, now)
	assert.Equal(t, 1, p.CurrentStreak)

	ApplyRun(p, c, day(2026, 3, 2), 5, now)
	assert.Equal(t, 2, p.CurrentStreak)

	ApplyRun(p, c, day(2026, 3, 5), 5, now)
	assert.Equal(t, 1, p.CurrentStreak, "gap resets the streak")
	assert.Equal(t, 2, p.LongestStreak, "longest streak survives the reset")
	assert.Equal(t, 3, p.DaysCompleted)
	assert.InDelta(t, 15.0, p.TotalDistance, 1e-9)
}

func TestApplyRun_SameDayCountedOnce(t *testing.T) {
	c := streakChallenge(31)
	p := &Progress{}
	now := time.Now()

	ApplyRun(p, c, day(2026, 3, 10), 3, now)
	ApplyRun(p, c, day(2026, 3, 10).Add(8*time.Hour), 4, now)

	assert.Equal(t, 1, p.DaysCompleted, "second run on the same day does not add a day")
	assert.Equal(t, 1, p.CurrentStreak, "second run on the same day does not extend the streak")
	assert.InDelta(t, 7.0, p.TotalDistance, 1e-9, "distance still accumulates")
}

func TestApplyRun_TotalDistanceCompletion(t *testing.T) {
	c := &Challenge{
		Type:           TypeTotalDistance,
		RequiredPerDay: 2,
		StartDate:      day(2026, 3, 1),
		EndDate:        day(2026, 3, 5),
	}
	require.Equal(t, 5, c.WindowDays())

	p := &Progress{}
	now := time.Now()

	ApplyRun(p, c, day(2026, 3, 1), 9, now)
	assert.False(t, p.IsComplete)

	ApplyRun(p, c, day(2026, 3, 2), 1, now)
	assert.True(t, p.IsComplete, "10km total meets 2km x 5 days")
}

func TestApplyRun_CompletionIsMonotonic(t *testing.T) {
	c := streakChallenge(3)
	p := &Progress{}
	now := time.Now()

	ApplyRun(p, c, day(2026, 3, 1), 5, now)
	ApplyRun(p, c, day(2026, 3, 2), 5, now)
	ApplyRun(p, c, day(2026, 3, 3), 5, now)
	require.True(t, p.IsComplete)

	// Streak resets after a gap, completion does not.
	ApplyRun(p, c, day(2026, 3, 3).AddDate(0, 0, 5), 5, now)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.True(t, p.IsComplete)
}

func TestApplyRun_CustomNeverAutoCompletes(t *testing.T) {
	c := &Challenge{
		Type:      TypeCustom,
		StartDate: day(2026, 3, 1),
		EndDate:   day(2026, 3, 2),
	}
	p := &Progress{}
	now := time.Now()

	ApplyRun(p, c, day(2026, 3, 1), 50, now)
	ApplyRun(p, c, day(2026, 3, 2), 50, now)
	assert.False(t, p.IsComplete)
}

func TestChallenge_Ended(t *testing.T) {
	c := streakChallenge(10) // window ends 2026-03-10

	assert.False(t, c.Ended(day(2026, 3, 10)), "end date itself is inside the window")
	assert.False(t, c.Ended(day(2026, 3, 10).Add(23*time.Hour+59*time.Minute)), "challenge runs through the whole end day")
	assert.True(t, c.Ended(day(2026, 3, 11)), "midnight after the end date is past the window")
	assert.True(t, c.Ended(day(2026, 3, 12)))
}

func TestChallenge_Contains(t *testing.T) {
	c := streakChallenge(10)

	assert.True(t, c.Contains(day(2026, 3, 1)))
	assert.True(t, c.Contains(day(2026, 3, 10).Add(23*time.Hour)))
	assert.False(t, c.Contains(day(2026, 2, 28)))
	assert.False(t, c.Contains(day(2026, 3, 11)))
}
