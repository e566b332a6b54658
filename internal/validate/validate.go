// Package validate checks account forms before they reach the backend.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinUsernameLength = 2
	MaxUsernameLength = 30
	MaxEmailLength    = 254
	MinPasswordLength = 8

	MsgFillAllFields    = "Please fill in all fields"
	MsgPasswordTooShort = "Password must contain atleast 8 characters."
	MsgUsernameChars    = "Only letters, numbers, ., - and _ are allowed"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// FieldError names the offending field and a message fit for the user.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// SignUp validates a registration form. The first failing field is reported.
func SignUp(username, email, password string) error {
	if err := Username(username); err != nil {
		return err
	}
	if err := Email(email); err != nil {
		return err
	}
	return Password(password)
}

// SignIn requires both fields to be non-blank.
func SignIn(user, password string) error {
	if strings.TrimSpace(user) == "" || password == "" {
		return &FieldError{Field: "credentials", Message: MsgFillAllFields}
	}
	return nil
}

func Username(username string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case n < MinUsernameLength:
		return &FieldError{Field: "username", Message: fmt.Sprintf("Username must contain at least %d characters.", MinUsernameLength)}
	case n > MaxUsernameLength:
		return &FieldError{Field: "username", Message: fmt.Sprintf("Username must contain at most %d characters.", MaxUsernameLength)}
	case !usernamePattern.MatchString(username):
		return &FieldError{Field: "username", Message: MsgUsernameChars}
	}
	return nil
}

func Email(email string) error {
	if len(email) > MaxEmailLength {
		return &FieldError{Field: "email", Message: fmt.Sprintf("Email must contain at most %d characters.", MaxEmailLength)}
	}
	addr, err := mail.ParseAddress(email)
	// ParseAddress accepts "Name <a@b>"; only a bare address is valid here.
	if err != nil || addr.Address != email {
		return &FieldError{Field: "email", Message: "Invalid email"}
	}
	return nil
}

func Password(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &FieldError{Field: "password", Message: MsgPasswordTooShort}
	}
	return nil
}

// AccountUpdate checks the non-empty fields of a settings change.
func AccountUpdate(username, email string) error {
	if username != "" {
		if err := Username(username); err != nil {
			return err
		}
	}
	if email != "" {
		return Email(email)
	}
	return nil
}
