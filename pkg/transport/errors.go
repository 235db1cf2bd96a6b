package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// Delivery failure taxonomy. All three classes are retryable under the same
// policy: a transiently unhealthy agent looks no different from a flaky
// network to the outbox.
var (
	// ErrNetwork means the device is offline or the connection failed.
	ErrNetwork = errors.New("network unavailable")

	// ErrTimeout means no response arrived within the per-call bound.
	ErrTimeout = errors.New("delivery timed out")
)

// ServerError means the remote agent rejected the request with a non-2xx
// status.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("agent returned status %d", e.Status)
}
