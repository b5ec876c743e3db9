// Package apperr holds the domain error taxonomy shared by the workspace
// engine and its transports.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeForbidden  = "FORBIDDEN"
	CodeConflict   = "CONFLICT"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code, message string, details any) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NotFound reports a workspace, plan day, POI or connection missing by id.
func NotFound(kind, id string) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s %s not found", kind, id), map[string]any{
		"kind": kind,
		"id":   id,
	})
}

func Validation(message string, details any) *Error {
	return New(http.StatusUnprocessableEntity, CodeValidation, message, details)
}

// Conflict reports an optimistic update that kept losing to concurrent writers.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message, nil)
}

func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

func IsConflict(err error) bool {
	return hasCode(err, CodeConflict)
}

func hasCode(err error, code string) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
