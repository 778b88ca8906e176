package syncer

import "time"

// retryDelays is the wait before re-executing a failed sync, indexed by the
// attempt that just failed. The last entry repeats for any further attempts.
var retryDelays = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

// NextDelay returns how long to wait after the given attempt failed before
// running the next one. Attempts are 1-based.
func NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(retryDelays) {
		attempt = len(retryDelays)
	}
	return retryDelays[attempt-1]
}

// ShouldRetry reports whether another automatic attempt is allowed after the
// given attempt failed.
func ShouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}
