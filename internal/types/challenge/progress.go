package challenge

import "time"

// ApplyRun folds one logged run into a progress row. The caller has already
// checked that runDate falls inside the challenge window. All date math is
// on calendar days, not timestamps.
//
// Streak recurrence:
//   - lastStreakDate == runDate-1d  -> streak+1
//   - lastStreakDate == runDate     -> unchanged (day already counted)
//   - anything else                 -> streak = 1
func ApplyRun(p *Progress, c *Challenge, runDate time.Time, distanceKm float64, now time.Time) {
	day := dateOnly(runDate)

	p.TotalDistance += distanceKm

	alreadyCounted := p.LastRunDate != nil && dateOnly(*p.LastRunDate).Equal(day)
	if !alreadyCounted {
		p.DaysCompleted++
	}

	switch {
	case p.LastStreakDate != nil && dateOnly(*p.LastStreakDate).Equal(day.AddDate(0, 0, -1)):
		p.CurrentStreak++
	case p.LastStreakDate != nil && dateOnly(*p.LastStreakDate).Equal(day):
		// same day, streak unchanged
	default:
		p.CurrentStreak = 1
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}

	p.LastRunDate = &day
	p.LastStreakDate = &day
	p.UpdatedAt = now

	// Completion is monotonic: never flips back to false.
	if !p.IsComplete && meetsCompletion(p, c) {
		p.IsComplete = true
	}
}

func meetsCompletion(p *Progress, c *Challenge) bool {
	days := c.WindowDays()
	switch c.Type {
	case TypeTotalDistance:
		return p.TotalDistance >= c.RequiredPerDay*float64(days)
	case TypeDailyDistance:
		return p.DaysCompleted >= days
	case TypeRunStreak:
		return p.CurrentStreak >= days
	default:
		return false
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
