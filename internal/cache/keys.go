package cache

import "fmt"

// RateLimitKey counts the requests of client in the window starting at
// windowStart (unix seconds).
func RateLimitKey(client string, windowStart int64) string {
	return fmt.Sprintf("mmm:ratelimit:%s:%d", client, windowStart)
}

// SummaryKey caches the summary computed from an artifact. Artifacts are
// immutable, so the entry never needs invalidation.
func SummaryKey(modelFilename string) string {
	return fmt.Sprintf("mmm:summary:%s", modelFilename)
}
