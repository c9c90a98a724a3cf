package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrClaimLost means the enrichment row is no longer owned by the caller's claim token.
	ErrClaimLost = errors.New("enrichment claim lost")
	ErrDuplicate = errors.New("already exists")
)
