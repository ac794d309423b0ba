package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Error Codes Reference
//
// # Results (RES001-RES099)
//
//	RES001 - Duplicate result: a result already exists for this student, course and semester
//	RES002 - Result not found
//	RES003 - Student not found
//	RES004 - Course not found
//	RES005 - Already exists: a course code or student email is taken
//	RES006 - Acting user missing
//
// # Validation (VAL001-VAL099)
//
//	VAL001 - Invalid input: a field failed validation
//	VAL002 - Invalid score
//	VAL003 - Invalid semester
//
// # Files (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Empty file
//	FILE004 - No file provided
//
// # Imports (IMP001-IMP099)
//
//	IMP001 - Too many imports in progress
//	IMP002 - Request cancelled
//	IMP003 - Request timed out
//
// # Database (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Deadlock
//
// # Rate limiting
//
//	RATE001 - Too many requests
//
// # Default
//
//	ERR000 - Unexpected error; check the logs for the technical error.
//
// Sentinel errors are matched first with errors.Is. Errors that carry no
// sentinel (driver and network failures) fall back to case-insensitive
// substring patterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgDuplicateResult = UserMessage{
		Message: "A result already exists for this student, course and semester",
		Action:  "Update the existing result instead of creating a new one",
		Code:    "RES001",
	}
	msgResultNotFound = UserMessage{
		Message: "Result not found",
		Action:  "Check the result ID",
		Code:    "RES002",
	}
	msgStudentNotFound = UserMessage{
		Message: "Student not found",
		Action:  "Check the student ID or register the student first",
		Code:    "RES003",
	}
	msgCourseNotFound = UserMessage{
		Message: "Course not found",
		Action:  "Check the course ID or create the course first",
		Code:    "RES004",
	}
	msgAlreadyExists = UserMessage{
		Message: "A record with this code or email already exists",
		Action:  "Use a different code or email",
		Code:    "RES005",
	}
	msgMissingActor = UserMessage{
		Message: "No acting user was provided",
		Action:  "Send the X-User-ID header",
		Code:    "RES006",
	}
	msgInvalidInput = UserMessage{
		Message: "Some fields are invalid",
		Action:  "Correct the highlighted fields and try again",
		Code:    "VAL001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated and quotes are balanced",
		Code:    "FILE002",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a CSV file with a header row",
		Code:    "FILE003",
	}
	msgTooManyImports = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP002",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "IMP003",
	}
)

// sentinelMessages is checked in order with errors.Is. Specific not-found
// errors come before ErrNotFound; ErrEmptyFile before ErrMalformedInput.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrDuplicateResult, msgDuplicateResult},
	{ErrResultNotFound, msgResultNotFound},
	{ErrStudentNotFound, msgStudentNotFound},
	{ErrCourseNotFound, msgCourseNotFound},
	{ErrNotFound, msgResultNotFound},
	{ErrAlreadyExists, msgAlreadyExists},
	{ErrMissingActor, msgMissingActor},
	{ErrEmptyFile, msgEmptyFile},
	{ErrMalformedInput, msgInvalidCSV},
	{ErrTooManyImports, msgTooManyImports},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "score must be",
		msg: UserMessage{
			Message: "Score must be a number between 0 and 100",
			Action:  "Enter a score from 0 to 100",
			Code:    "VAL002",
		},
	},
	{
		pattern: "semester must be",
		msg: UserMessage{
			Message: "Semester must be a whole number between 1 and 8",
			Action:  "Enter a semester from 1 to 8",
			Code:    "VAL003",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Attach a CSV file in the resultsFile field",
			Code:    "FILE004",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Returns the
// zero UserMessage for a nil error and the ERR000 fallback when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		for _, ep := range errorPatterns {
			if strings.Contains(strings.ToLower(ve.Message), ep.pattern) {
				return ep.msg
			}
		}
		return msgInvalidInput
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
