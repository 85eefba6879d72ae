// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across storage/service/api layers.
var (
	// ErrValidation indicates a blank or malformed request field, detected before storage is touched.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., tag name taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrReferentialIntegrity indicates a foreign key violation.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrTagInUse indicates an attempt to delete a tag that is still attached to an object.
	ErrTagInUse = errors.New("tag is in use")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRowCount indicates a statement affected a number of rows other than exactly one.
	ErrRowCount = errors.New("unexpected number of rows affected")

	// ErrInsert indicates the engine reported no generated identity for an insert.
	ErrInsert = errors.New("insert failed")

	// ErrUpdate wraps ErrRowCount for versioned updates.
	ErrUpdate = errors.New("update failed")

	// ErrDelete wraps ErrRowCount for versioned deletes.
	ErrDelete = errors.New("delete failed")

	// ErrInvalidFormat indicates a malformed duration or coefficient string.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnknownOperation indicates a request for an operation the dispatcher does not know.
	ErrUnknownOperation = errors.New("unknown operation")
)
