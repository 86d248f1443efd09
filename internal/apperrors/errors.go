package apperrors

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrAuthFailure   = errors.New("authentication failed")
	ErrNotFound      = errors.New("not found")
	ErrSelfReference = errors.New("cannot reference yourself")
	ErrDuplicate     = errors.New("already exists")
	ErrWriteFailure  = errors.New("write failed")
	ErrInvalidInput  = errors.New("invalid input")
)

// Code returns a short machine readable code for err, used in websocket error envelopes.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSelfReference):
		return "self_reference"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrWriteFailure):
		return "write_failure"
	default:
		return "internal"
	}
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrAuthFailure):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrSelfReference):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrDuplicate):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrWriteFailure):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
