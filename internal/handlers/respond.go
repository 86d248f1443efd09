package handlers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/session"
	"github.com/fathima-sithara/realtime-chat/internal/users"
	"github.com/fathima-sithara/realtime-chat/internal/utils"
)

// fail writes err as a JSON error body with the status its class maps to.
func fail(c *fiber.Ctx, err error) error {
	status := apperrors.Status(err)
	body := fiber.Map{"error": apperrors.Code(err), "message": err.Error()}

	var inv *utils.InvalidInput
	if errors.As(err, &inv) {
		body["fields"] = inv.Fields
	}
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		if status == fiber.StatusInternalServerError {
			body["message"] = "internal server error"
		}
	}
	return c.Status(status).JSON(body)
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": "invalid body"})
}

// ErrorHandler is the fiber app error handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": "http_error", "message": fe.Message})
	}
	return fail(c, err)
}

// param returns the unescaped route parameter, e.g. "%23general" -> "#general".
func param(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// Sessions resolves the session of the authenticated caller, creating it on first use.
type Sessions struct {
	users    *users.Service
	sessions *session.Manager
}

func NewSessions(u *users.Service, m *session.Manager) *Sessions {
	return &Sessions{users: u, sessions: m}
}

func (s *Sessions) current(c *fiber.Ctx) (*session.Session, error) {
	u, err := s.users.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrAuthFailure
		}
		return nil, err
	}
	return s.sessions.Init(c.UserContext(), u), nil
}
