package store

import "errors"

// Store errors.
var (
	ErrNotFound      = errors.New("item not found")
	ErrAlreadyExists = errors.New("item already exists")
	ErrInvalidID     = errors.New("invalid item ID")
	ErrInvalidDSN    = errors.New("sqlite DSN must point to an in-memory database")
	ErrClosed        = errors.New("store is closed")
)
