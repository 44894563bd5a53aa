package run

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"runCrewAPI/internal/apperr"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want AttendanceStatus
	}{
		{"going", StatusGoing},
		{"GOING", StatusGoing},
		{" maybe ", StatusMaybe},
		{"not_going", StatusNotGoing},
		{"NotGoing", StatusNotGoing},
	}
	for _, tc := range cases {
		got, err := ParseStatus(tc.in)
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseStatus_Invalid(t *testing.T) {
	for _, in := range []string{"", "yes", "attending", "not going"} {
		_, err := ParseStatus(in)
		assert.True(t, errors.Is(err, apperr.ErrBadRequest), "input %q", in)
	}
}

func TestComputeDerived(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	future := now.AddDate(0, 0, 3)
	r := &ScheduledRun{RunAt: &future}
	r.ComputeDerived(now)
	assert.True(t, r.IsUpcoming)
	assert.Equal(t, 3, r.DaysRemaining)

	past := now.AddDate(0, 0, -1)
	r = &ScheduledRun{RunAt: &past}
	r.ComputeDerived(now)
	assert.False(t, r.IsUpcoming)
	assert.Equal(t, 0, r.DaysRemaining)

	r = &ScheduledRun{}
	r.ComputeDerived(now)
	assert.False(t, r.IsUpcoming)
}

func TestAttendanceSummaryTotal(t *testing.T) {
	s := AttendanceSummary{Going: 4, Maybe: 2, NotGoing: 1}
	assert.Equal(t, 7, s.Total())
}
