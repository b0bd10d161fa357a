package auth

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeUnauthorizedDomain = "unauthorized_domain"
	CodePopupClosed        = "popup_closed_by_user"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailExists        = "email_exists"
	CodeInvalidEmail       = "invalid_email"
	CodeWeakPassword       = "weak_password"
)

// Error is a failure reported by the auth service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Describe returns the message to show the user for err. A dismissed sign-in
// popup yields the empty string.
func Describe(err error, hostname string) string {
	if err == nil {
		return ""
	}

	var authErr *Error
	if errors.As(err, &authErr) {
		switch authErr.Code {
		case CodeUnauthorizedDomain:
			if hostname != "" {
				return fmt.Sprintf("Domain Unauthorized: add %q to the allowed origins of the server.", hostname)
			}
			return "Domain Unauthorized: the current domain is not allowed by the server."
		case CodePopupClosed:
			return ""
		}
		if authErr.Message != "" {
			return authErr.Message
		}
	}

	if msg := err.Error(); strings.Contains(msg, "unauthorized-domain") || strings.Contains(msg, CodeUnauthorizedDomain) {
		return fmt.Sprintf("Domain Unauthorized: add %q to the allowed origins of the server.", hostname)
	}
	if authErr == nil && err.Error() != "" {
		return err.Error()
	}
	return "Authentication failed"
}
