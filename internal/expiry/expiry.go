package expiry

import (
	"fmt"
	"time"
)

// IsExpired reports whether the deadline has passed. A zero deadline never
// expires.
func IsExpired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt)
}

// TimeRemaining recomputes the countdown from the stored deadline rather
// than from any remembered "seconds left", so reloads and clock drift
// cannot stretch the window.
func TimeRemaining(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	d := expiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// FormatRemaining renders a countdown as HH:MM:SS.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
