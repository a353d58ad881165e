package transport

import "time"

// reconnectDelay implements the exponential backoff schedule: baseDelay *
// 2^(attempt-1), capped at maxDelay. attempt is 1-indexed (the first retry
// is attempt 1).
func reconnectDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
