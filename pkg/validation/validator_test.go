package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Length(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"ok", "abc", ""},
		{"blank", "   ", "login is required"},
		{"too short", "ab", "login must be at least 3 characters"},
		{"too long", strings.Repeat("x", 11), "login must be at most 10 characters"},
		{"multibyte counted as characters", "ééé", ""},
		{"trimmed before counting", "  ab  ", "login must be at least 3 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator().Length("login", tt.value, 3, 10).Err()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := NewValidator()
	v.Required("name", "").
		Length("password", "123", 6, 200).
		OneOf("role", "superuser", "admin", "member")

	assert.False(t, v.Valid())

	var verr *Error
	require.True(t, errors.As(v.Err(), &verr))
	require.Len(t, verr.Fields, 3)
	assert.Equal(t, RuleRequired, verr.Fields[0].Rule)
	assert.Equal(t, RuleLength, verr.Fields[1].Rule)
	assert.Equal(t, "role must be one of admin, member", verr.Fields[2].Message)
	assert.Equal(t, "name is required", verr.Error())
}

func TestValidator_OneOf(t *testing.T) {
	assert.NoError(t, NewValidator().OneOf("role", "admin", "admin", "member").Err())
	assert.Error(t, NewValidator().OneOf("role", "Admin", "admin", "member").Err())
}

func TestError_Empty(t *testing.T) {
	assert.Equal(t, "validation failed", (&Error{}).Error())
}
