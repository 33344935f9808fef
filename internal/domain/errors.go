package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrWorkspaceAccessDenied signals the caller has no access to the workspace.
	ErrWorkspaceAccessDenied = errors.New("workspace access denied")
	// ErrEngineUnavailable signals the search engine rejected or failed the call.
	ErrEngineUnavailable = errors.New("search engine unavailable")
	// ErrCircuitOpen signals a fast-fail while the breaker cooldown runs.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrInvalidRequest signals a malformed search or index request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBulkPartialFailure signals that some items of a bulk call failed.
	ErrBulkPartialFailure = errors.New("bulk partially failed")
)

// CircuitOpenError wraps ErrCircuitOpen with the remaining cooldown.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrCircuitOpen.Error(), e.RetryAfter)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// NewCircuitOpen creates a fast-fail error carrying the remaining cooldown.
func NewCircuitOpen(retryAfter time.Duration) error {
	return &CircuitOpenError{RetryAfter: retryAfter}
}
