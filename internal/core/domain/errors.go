package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested entity is absent from the index or store
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the entity already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrPartialBatch indicates a subset of a bulk operation failed.
	// The accompanying BatchResult lists which items succeeded and which failed.
	ErrPartialBatch = errors.New("partial batch failure")

	// ErrServiceUnavailable indicates the index, bus, or store could not be reached.
	// Callers decide whether and how to retry.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrMalformedEvent indicates an event payload could not be decoded
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownIndexKind indicates an index kind has no registered mapping
	ErrUnknownIndexKind = errors.New("unknown index kind")

	// ErrSyncInProgress indicates a full resync is already running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrLockLost indicates a lease expired or was taken over by another holder
	ErrLockLost = errors.New("lock lost")
)
