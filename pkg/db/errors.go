package db

import "errors"

var (
	// ErrNotFound is returned when a record with the requested key does not exist
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when an update was based on a stale version
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateEmail is returned when a user email is already taken
	ErrDuplicateEmail = errors.New("email already in use")
)
