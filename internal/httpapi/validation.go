package httpapi

import (
	"errors"
	"net/mail"
	"strings"
)

const (
	minPasswordBytes = 8
	maxPasswordBytes = 72
)

var (
	errInvalidEmail     = errors.New("email must be a valid address")
	errPasswordTooShort = errors.New("password must be at least 8 characters")
	errPasswordTooLong  = errors.New("password must be at most 72 bytes")
	errCodeRequired     = errors.New("code is required")
)

// validateEmail accepts a bare address such as a@example.com. Display-name
// forms are refused.
func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errInvalidEmail
	}
	return nil
}

func validatePassword(password string) error {
	switch {
	case len(password) < minPasswordBytes:
		return errPasswordTooShort
	case len(password) > maxPasswordBytes:
		return errPasswordTooLong
	}
	return nil
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return errCodeRequired
	}
	return nil
}
