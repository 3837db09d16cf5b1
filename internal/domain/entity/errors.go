package entity

import "errors"

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateGUID indicates an attempt to mark a guid processed twice.
	// This is a contract violation of the at-most-once invariant and must be
	// surfaced, never silently ignored.
	ErrDuplicateGUID = errors.New("entry guid already processed")
)
