package logic

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/store"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInsufficientRights Code = "INSUFFICIENT_RIGHTS"
	CodeActionInProgress   Code = "ACTION_IN_PROGRESS"
	CodeDuplicate          Code = "DUPLICATE"
	CodeMalformedArgument  Code = "MALFORMED_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
)

// Error is a domain error returned by the logic operations.
type Error struct {
	Code    Code
	Message string
	// Action is the blocking action for CodeActionInProgress
	Action *models.Action
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNonAdminCannotCreatePersistentProject is returned when a regular user asks for a persistent project
	ErrNonAdminCannotCreatePersistentProject = &Error{
		Code:    CodeInsufficientRights,
		Message: "Admin only can create persistent projects.",
	}
	// ErrNonAdminCannotDisableAutoPruning is returned when a regular user turns off auto-prune
	ErrNonAdminCannotDisableAutoPruning = &Error{
		Code:    CodeInsufficientRights,
		Message: "Non-admin cannot disable auto-pruning.",
	}
)

// InsufficientRights creates a CodeInsufficientRights error
func InsufficientRights(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInsufficientRights, Message: fmt.Sprintf(format, args...)}
}

// ActionInProgress creates a CodeActionInProgress error carrying the blocking action
func ActionInProgress(action *models.Action, format string, args ...interface{}) *Error {
	return &Error{Code: CodeActionInProgress, Message: fmt.Sprintf(format, args...), Action: action}
}

// Duplicate creates a CodeDuplicate error
func Duplicate(format string, args ...interface{}) *Error {
	return &Error{Code: CodeDuplicate, Message: fmt.Sprintf(format, args...)}
}

// MalformedArgument creates a CodeMalformedArgument error
func MalformedArgument(format string, args ...interface{}) *Error {
	return &Error{Code: CodeMalformedArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a CodeNotFound error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// GetCode extracts the error code from any error.
// Store lookups that found nothing map to CodeNotFound.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, store.ErrNotFound) {
		return CodeNotFound
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// HTTPStatus maps domain codes to HTTP status codes.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInsufficientRights:
		return http.StatusForbidden
	case CodeActionInProgress, CodeDuplicate:
		return http.StatusConflict
	case CodeMalformedArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// notFoundAs turns a store miss into a domain NotFound error with a readable message
func notFoundAs(err error, format string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFound(format, args...)
	}
	return err
}
