package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error category. Codes are part of the
// public API surface and are serialized verbatim in error responses.
type Code string

const (
	// CodeValidation indicates malformed or semantically invalid input.
	CodeValidation Code = "validation_error"
	// CodeNotFound indicates a referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodePermissionDenied indicates the actor is not allowed to perform the operation.
	CodePermissionDenied Code = "permission_denied"
	// CodeInvalidTransition indicates a contract state transition outside the workflow table.
	CodeInvalidTransition Code = "invalid_state_transition"
	// CodeInvitationInvalid indicates an invitation token that is malformed, unknown,
	// expired or already consumed.
	CodeInvitationInvalid Code = "invitation_invalid"
	// CodeRateLimited indicates the caller exceeded a rate limit window.
	CodeRateLimited Code = "rate_limited"
	// CodeOutOfOrder indicates a signature attempted outside the signing order.
	CodeOutOfOrder Code = "out_of_order"
	// CodeAlreadyExists indicates a uniqueness violation.
	CodeAlreadyExists Code = "already_exists"
	// CodeExternal indicates a dependency outside the engine failed.
	CodeExternal Code = "external_failure"
)

// Error is a domain error with a stable code, a human readable message and
// optional structured detail.
type Error struct {
	Code    Code
	Message string
	Detail  map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetail attaches a detail entry, allocating the map lazily.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Detail == nil {
		e.Detail = map[string]interface{}{}
	}
	e.Detail[key] = value
	return e
}

// Validation returns a validation_error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a not_found error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// PermissionDenied returns a permission_denied error.
func PermissionDenied(format string, args ...interface{}) *Error {
	return &Error{Code: CodePermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition returns an invalid_state_transition error carrying the
// current and requested states.
func InvalidTransition(from, to string) *Error {
	e := &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("transition from %s to %s is not allowed", from, to),
	}
	return e.WithDetail("current_state", from).WithDetail("requested_state", to)
}

// InvitationInvalid returns an invitation_invalid error.
func InvitationInvalid(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvitationInvalid, Message: fmt.Sprintf(format, args...)}
}

// RateLimited returns a rate_limited error carrying the retry window in seconds.
func RateLimited(retryAfterSeconds int64) *Error {
	e := &Error{Code: CodeRateLimited, Message: "rate limit exceeded"}
	return e.WithDetail("retry_after", retryAfterSeconds)
}

// OutOfOrder returns an out_of_order signing error.
func OutOfOrder(format string, args ...interface{}) *Error {
	return &Error{Code: CodeOutOfOrder, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists returns an already_exists error.
func AlreadyExists(format string, args ...interface{}) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// External returns an external_failure error; cause is included in the message.
func External(op string, cause error) *Error {
	return &Error{Code: CodeExternal, Message: fmt.Sprintf("%s: %s", op, cause)}
}

// CodeOf extracts the Code from err, or CodeExternal if err is not a domain Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeExternal
}

// StatusOf maps a Code to the HTTP status used by the API.
func StatusOf(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidTransition, CodeInvitationInvalid, CodeOutOfOrder, CodeAlreadyExists:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// From converts err into a ServiceError body.
func From(err error) ServiceError {
	var e *Error
	if errors.As(err, &e) {
		var detail interface{}
		if len(e.Detail) > 0 {
			detail = e.Detail
		}
		return ServiceError{Code: e.Code, Message: e.Message, Detail: detail}
	}
	return ServiceError{Code: CodeExternal, Message: err.Error()}
}
