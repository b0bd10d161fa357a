// Package errors defines the error envelope of the document service API.
package errors

import (
	"fmt"
	"net/http"
)

const (
	CodeInternal           = "internal_error"
	CodeInvalidJSON        = "invalid_json"
	CodeInvalidPath        = "invalid_path"
	CodeNotFound           = "not_found"
	CodeRevisionConflict   = "revision_conflict"
	CodeUnauthorized       = "unauthorized"
	CodeUnauthorizedDomain = "unauthorized_domain"
	CodeForbidden          = "forbidden"
	CodeEmailExists        = "email_exists"
	CodeInvalidEmail       = "invalid_email"
	CodeWeakPassword       = "weak_password"
	CodeInvalidCredentials = "invalid_credentials"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, CodeInternal, message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func InvalidPath(err error) *APIError {
	return New(http.StatusBadRequest, CodeInvalidPath, err.Error())
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// UnauthorizedDomain rejects a browser origin that is not on the allow list.
func UnauthorizedDomain(origin string) *APIError {
	err := New(http.StatusForbidden, CodeUnauthorizedDomain, "this domain is not authorized for authentication")
	err.Details = map[string]string{"origin": origin}
	return err
}

func Forbidden(message string) *APIError {
	if message == "" {
		message = "forbidden"
	}
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

// Envelope is the JSON body written for the error.
func (e *APIError) Envelope() map[string]any {
	body := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return map[string]any{"error": body}
}
