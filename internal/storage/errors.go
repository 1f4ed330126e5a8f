package storage

import "errors"

// Lookup errors
var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid storage key")
)

// Database errors
var (
	ErrDatabaseClosed = errors.New("database connection closed")
)
