package domain

import "errors"

var (
	// ErrNotFound signals a referenced entity is absent from storage.
	ErrNotFound = errors.New("soa2: not found")
	// ErrUserNotFound signals the upstream identity source has no such
	// Scratch account.
	ErrUserNotFound = errors.New("soa2: scratch user not found")
)
