package models

import "errors"

var (
	// ErrConfig marks malformed or missing settings
	ErrConfig = errors.New("invalid configuration")
	// ErrMissingField is returned when a doc part names a field the record lacks
	ErrMissingField = errors.New("required field missing")
	// ErrNoIndex is returned when no index id was given or persisted
	ErrNoIndex = errors.New("no index configured")
	// ErrNotLoggedIn is returned when a command needs tokens that are not stored
	ErrNotLoggedIn = errors.New("not logged in")
)

// IsUsageError reports whether err should be shown to the operator as a usage problem
func IsUsageError(err error) bool {
	return errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrNoIndex) ||
		errors.Is(err, ErrNotLoggedIn)
}
