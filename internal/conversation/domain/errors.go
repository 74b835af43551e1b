package domain

import "errors"

var (
	// ErrThreadNotFound is the permanent "gone from the provider" error:
	// the sync skips the unit and moves on instead of retrying.
	ErrThreadNotFound = errors.New("provider thread not found")
	// ErrAuthRevoked indicates the inbox credentials no longer work.
	ErrAuthRevoked = errors.New("provider authorization revoked")
)
