package handlers

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/friends"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/users"
)

type UserHandler struct {
	users    *users.Service
	friends  *friends.Service
	presence *presence.Tracker
}

func NewUserHandler(u *users.Service, f *friends.Service, p *presence.Tracker) *UserHandler {
	return &UserHandler{users: u, friends: f, presence: p}
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	u, err := h.users.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user": u})
}

func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	var req users.UpdateProfileInput
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	u, err := h.users.UpdateDisplayName(c.UserContext(), middleware.UserID(c), req.DisplayName)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user": u})
}

// UploadAvatar accepts a multipart "avatar" file or a raw image body.
func (h *UserHandler) UploadAvatar(c *fiber.Ctx) error {
	var data []byte
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("avatar")
		if err != nil {
			return badBody(c)
		}
		f, err := fh.Open()
		if err != nil {
			return fail(c, err)
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			return fail(c, err)
		}
	} else {
		data = append([]byte(nil), c.Body()...)
	}
	if len(data) == 0 {
		return fail(c, apperrors.ErrInvalidInput)
	}

	u, err := h.users.UploadAvatar(c.UserContext(), middleware.UserID(c), data)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user": u})
}

func (h *UserHandler) Lookup(c *fiber.Ctx) error {
	uid, err := h.friends.Lookup(c.UserContext(), c.Query("name"))
	if err != nil {
		return fail(c, err)
	}
	u, err := h.users.Get(c.UserContext(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"id": u.ID, "display_name": u.DisplayName, "avatar_url": u.AvatarURL})
}

func (h *UserHandler) Presence(c *fiber.Ctx) error {
	p, err := h.presence.Get(c.UserContext(), param(c, "uid"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}
