package api

import (
	"regexp"
	"strings"

	"github.com/idilsaglam/tasks/internal/model"
)

// MinPasswordLen is the shortest password accepted at registration.
const MinPasswordLen = 6

var emailRe = regexp.MustCompile(`\S+@\S+\.\S+`)

// fieldErrors collects per-field messages; the first message for a field wins.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// ValidateRegistration runs the pre-submission checks for Register.
func ValidateRegistration(username, email, password string) error {
	f := fieldErrors{}
	if strings.TrimSpace(username) == "" {
		f.add("username", "Username is required")
	}
	checkEmail(f, email)
	switch {
	case password == "":
		f.add("password", "Password is required")
	case len(password) < MinPasswordLen:
		f.add("password", "Password must be at least 6 characters")
	}
	return f.err()
}

// ValidateLogin runs the pre-submission checks for Login.
func ValidateLogin(email, password string) error {
	f := fieldErrors{}
	if strings.TrimSpace(email) == "" {
		f.add("email", "Email is required")
	}
	if password == "" {
		f.add("password", "Password is required")
	}
	return f.err()
}

// ValidateTask checks a title/status pair before create or update.
func ValidateTask(title string, status model.Status) error {
	f := fieldErrors{}
	if strings.TrimSpace(title) == "" {
		f.add("title", "Title cannot be empty")
	}
	if !status.Valid() {
		f.add("status", "Unknown status "+string(status))
	}
	return f.err()
}

func checkEmail(f fieldErrors, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		f.add("email", "Email is required")
	case !emailRe.MatchString(email):
		f.add("email", "Invalid email format")
	}
}
