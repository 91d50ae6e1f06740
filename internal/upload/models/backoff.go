package models

import "time"

// Backoff is a fixed table of retry delays indexed by retry count. Counts past
// the end reuse the last entry.
type Backoff []time.Duration

// DefaultBackoff is 1s, 2s, 5s, 15s, 30s, 60s.
var DefaultBackoff = Backoff{
	time.Second,
	2 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	time.Minute,
}

// DefaultMaxRetries is the retry ceiling before a retryable failure turns
// terminal.
const DefaultMaxRetries = 8

// Delay returns the wait before attempt number retryCount (1-based).
func (b Backoff) Delay(retryCount int) time.Duration {
	if len(b) == 0 {
		return 0
	}
	i := retryCount - 1
	if i < 0 {
		i = 0
	}
	if i >= len(b) {
		i = len(b) - 1
	}
	return b[i]
}
