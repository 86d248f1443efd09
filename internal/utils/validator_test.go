package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
)

type signUp struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	DisplayName string `json:"display_name" validate:"notblank,max=64"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := Validate(signUp{Email: "nope", Password: "123", DisplayName: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	var inv *InvalidInput
	require.ErrorAs(t, err, &inv)
	fields := map[string]ValidationError{}
	for _, f := range inv.Fields {
		fields[f.Field] = f
	}
	assert.Equal(t, "email", fields["email"].Tag)
	assert.Equal(t, "min", fields["password"].Tag)
	assert.Empty(t, fields["password"].Value, "passwords are never echoed")
	assert.Equal(t, "display_name is required", fields["display_name"].Message)
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, Validate(signUp{Email: "a@b.io", Password: "secret1", DisplayName: "Ann"}))
}
