package processor

import "time"

// Delay returns the backoff before retry attempt n (zero-based): base
// doubling per attempt, capped. Pure so dispatch timing stays testable.
func Delay(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if cap > 0 && delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}
