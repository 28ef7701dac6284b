package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotClaimable       = errors.New("activation not found or no longer claimable")
	ErrNotConsumable      = errors.New("activation not claimed or already consumed")
	ErrRateLimited        = errors.New("too many attempts")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique pairing code")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context passed to repository")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
