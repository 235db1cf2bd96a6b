package outbox

import (
	"math/rand"
	"time"
)

const (
	backoffBase   = 1 * time.Second
	backoffCap    = 30 * time.Second
	backoffJitter = 1 * time.Second
)

// ComputeDelay maps an attempt count to a retry delay:
// min(base * 2^attempt, cap) plus up to one second of uniform jitter drawn
// per call, so pending entries do not resynchronize into a retry storm.
// Pure aside from the random draw; no I/O.
func ComputeDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := backoffCap
	// 2^attempt overflows the shift long before it matters; past the cap the
	// exact exponent is irrelevant.
	if attempt < 30 {
		if d := backoffBase << uint(attempt); d < backoffCap {
			delay = d
		}
	}

	return delay + time.Duration(rand.Int63n(int64(backoffJitter)))
}
