package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, client-facing error code.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeUniqueness           Code = "UNIQUENESS_VIOLATION"
	CodeReferentialIntegrity Code = "REFERENTIAL_INTEGRITY_VIOLATION"
	CodeNotFound             Code = "NOT_FOUND"
	CodeRowCountMismatch     Code = "ROW_COUNT_MISMATCH"
	CodeInvalidFormat        Code = "INVALID_FORMAT"
	CodeUnknownOperation     Code = "UNKNOWN_OPERATION"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// CodeOf maps an error chain to its code. Unclassified errors are internal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrAlreadyExists):
		return CodeUniqueness
	case errors.Is(err, ErrTagInUse), errors.Is(err, ErrReferentialIntegrity):
		return CodeReferentialIntegrity
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRowCount), errors.Is(err, ErrInsert):
		return CodeRowCountMismatch
	case errors.Is(err, ErrInvalidFormat):
		return CodeInvalidFormat
	case errors.Is(err, ErrUnknownOperation):
		return CodeUnknownOperation
	default:
		return CodeInternal
	}
}

// ClassifySQL re-classifies constraint failures reported by the engine.
// SQLite only exposes the constraint kind in the message text.
func ClassifySQL(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrReferentialIntegrity, err)
	default:
		return err
	}
}

// Validation builds a validation error for a field.
func Validation(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}
