package authz

import (
	"errors"
	"net/http"
)

// Code is a stable machine-readable error code. Codes are part of the API
// contract; messages are not.
type Code string

const (
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeForbidden               Code = "FORBIDDEN"
	CodeSessionExpired          Code = "SESSION_EXPIRED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeAlreadyReviewed         Code = "ALREADY_REVIEWED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidInput            Code = "INVALID_INPUT"
)

// Error is a typed error with a stable code. Messages name the missing
// permission when relevant but never enumerate the caller's permissions.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError builds a typed error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the Code from an error, or empty when err is not typed.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error code to an HTTP status for API boundaries.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeForbidden, CodeInsufficientPermissions:
		return http.StatusForbidden
	case CodeAlreadyReviewed:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
