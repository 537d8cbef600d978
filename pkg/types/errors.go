package types

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors shared across components
var (
	// ErrCancelled is returned when a batch run is stopped by caller
	// request. It wraps context.Canceled so either sentinel matches.
	ErrCancelled = fmt.Errorf("batch run cancelled: %w", context.Canceled)
	// ErrEmptyBatch is returned when ProcessBatch is called with no items
	ErrEmptyBatch = errors.New("batch contains no items")
)

// BatchError is the aggregate error returned when a run aborts early
// (fail-fast strategy, or best-effort error-rate abort). It carries the
// partial result set accumulated before the abort.
type BatchError struct {
	Message    string
	Results    []BatchItemResult
	ItemErrors []BatchItemError
	Cancelled  bool
}

// Error implements the error interface
func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d items failed, %d results collected", e.Message, len(e.ItemErrors), len(e.Results))
}

// Unwrap exposes cancellation so callers can test errors.Is(err, context.Canceled)
func (e *BatchError) Unwrap() error {
	if e.Cancelled {
		return ErrCancelled
	}
	return nil
}

// ResourceExhaustedError is returned when memory pressure breaches the
// emergency threshold and the run cannot safely continue.
type ResourceExhaustedError struct {
	MemoryUsedMB  float64
	MemoryLimitMB float64
}

// Error implements the error interface
func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource exhausted: memory %.1fMB of %.1fMB limit", e.MemoryUsedMB, e.MemoryLimitMB)
}
