package app

import "time"

// calculateNextDelay returns the time until the next multiple of interval.
func calculateNextDelay(now time.Time, interval time.Duration) time.Duration {
	next := now.Truncate(interval).Add(interval)
	return next.Sub(now)
}
