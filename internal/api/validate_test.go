package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tasks/internal/model"
)

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name                      string
		username, email, password string
		want                      map[string]string
	}{
		{"ok", "alice", "a@b.com", "secret", nil},
		{"all empty", "", "", "", map[string]string{
			"username": "Username is required",
			"email":    "Email is required",
			"password": "Password is required",
		}},
		{"bad email", "alice", "not-an-email", "secret", map[string]string{
			"email": "Invalid email format",
		}},
		{"short password", "alice", "a@b.com", "12345", map[string]string{
			"password": "Password must be at least 6 characters",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegistration(tt.username, tt.email, tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.want, ve.Fields)
		})
	}
}

func TestValidateLogin(t *testing.T) {
	assert.NoError(t, ValidateLogin("a@b.com", "x"))

	var ve *ValidationError
	require.True(t, errors.As(ValidateLogin("", ""), &ve))
	assert.Equal(t, "Email is required", ve.Field("email"))
	assert.Equal(t, "Password is required", ve.Field("password"))
}

func TestValidateTask(t *testing.T) {
	assert.NoError(t, ValidateTask("Buy milk", model.StatusPending))
	assert.True(t, IsValidation(ValidateTask("", model.StatusPending)))
	assert.True(t, IsValidation(ValidateTask("x", model.Status("archived"))))
}

func TestValidationError_MessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"password": "p", "email": "e"}}
	assert.Equal(t, "validation failed: email: e; password: p", err.Error())
}
