package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestFormatPace(t *testing.T) {
	// 10km in 50 minutes is 5:00 min/km.
	assert.Equal(t, "5:00", FormatPace(10, intPtr(3000)))

	// 5km in 27:30 is 5:30 min/km.
	assert.Equal(t, "5:30", FormatPace(5, intPtr(1650)))

	assert.Equal(t, "", FormatPace(10, nil))
	assert.Equal(t, "", FormatPace(0, intPtr(3000)))
	assert.Equal(t, "", FormatPace(10, intPtr(0)))
}
