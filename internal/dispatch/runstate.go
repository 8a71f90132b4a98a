// Package dispatch drives identifiers through the fetch pipeline with a
// bounded worker pool and cooperative cancellation.
package dispatch

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// RunState is process-wide per-run state: a one-way cancellation flag and
// the run's identity for log correlation. The flag is set exactly once by an
// external interrupt and read-only everywhere else.
type RunState struct {
	ID        uuid.UUID
	cancelled atomic.Bool
}

// NewRunState returns a RunState with a fresh run ID.
func NewRunState() *RunState {
	return &RunState{ID: uuid.New()}
}

// Cancel sets the cancellation flag. It reports whether this call performed
// the transition; a second interrupt while shutdown is in progress is a
// no-op.
func (r *RunState) Cancel() bool {
	return r.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether cancellation has been requested. Readers treat
// true as advisory: finish the current unit, start no new ones.
func (r *RunState) Cancelled() bool {
	return r.cancelled.Load()
}
