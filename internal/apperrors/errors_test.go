package apperrors

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestStatusUnwrapsWrappedErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("sign in: %w", ErrAuthFailure), fiber.StatusUnauthorized, "auth_failure"},
		{fmt.Errorf("lookup bob: %w", ErrNotFound), fiber.StatusNotFound, "not_found"},
		{ErrSelfReference, fiber.StatusUnprocessableEntity, "self_reference"},
		{fmt.Errorf("friend: %w", ErrDuplicate), fiber.StatusConflict, "duplicate"},
		{ErrInvalidInput, fiber.StatusBadRequest, "invalid_input"},
		{ErrWriteFailure, fiber.StatusBadGateway, "write_failure"},
		{fmt.Errorf("boom"), fiber.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, Status(tc.err), tc.err.Error())
		assert.Equal(t, tc.code, Code(tc.err), tc.err.Error())
	}
}
