package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Webhook pipeline errors
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrSubscriptionLocked = errors.New("subscription is being reconciled by another delivery")
)
