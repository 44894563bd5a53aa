package utils

import "fmt"

// FormatPace renders min/km as "M:SS" from distance and duration. Empty when
// either is missing or nonsensical.
func FormatPace(distanceKm float64, durationSec *int) string {
	if durationSec == nil || *durationSec <= 0 || distanceKm <= 0 {
		return ""
	}
	secPerKm := float64(*durationSec) / distanceKm
	minutes := int(secPerKm) / 60
	seconds := int(secPerKm) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
