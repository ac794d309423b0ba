package core

import (
	"errors"
	"fmt"
)

// Failure kinds. Wrap them with fmt.Errorf("...: %w", ...) and match with errors.Is.
var (
	// ErrNotFound: a referenced result, student or course does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateResult: a result already exists for the (student, course, semester) triple.
	ErrDuplicateResult = errors.New("duplicate result")

	// ErrAlreadyExists: a catalog entry with the same unique code or email exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput: a field failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedInput: the import payload could not be tokenized into rows.
	ErrMalformedInput = errors.New("malformed input")

	// ErrMissingActor: a mutation was attempted without an acting user.
	ErrMissingActor = errors.New("acting user required")
)

// Not-found errors for each entity, all matching ErrNotFound.
var (
	ErrResultNotFound  = fmt.Errorf("result %w", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)
	ErrCourseNotFound  = fmt.Errorf("course %w", ErrNotFound)
)

// ValidationError reports a single invalid field. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string // Field name as the caller sent it
	Value   string // The offending value, if any
	Message string // Human-readable reason
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// invalid builds a ValidationError.
func invalid(field, value, message string) error {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// MalformedInputError wraps a tokenizer failure. It matches ErrMalformedInput.
type MalformedInputError struct {
	Line int   // Physical line of the failure, 0 if unknown
	Err  error // Underlying parser error
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed input: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}
