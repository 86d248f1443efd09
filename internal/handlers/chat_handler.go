package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/chat"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: svc}
}

func (h *ChatHandler) Conversations(c *fiber.Ctx) error {
	convs, err := h.chat.Conversations(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// With resolves the direct conversation with another user and returns its recent messages.
func (h *ChatHandler) With(c *fiber.Ctx) error {
	uid, other := middleware.UserID(c), param(c, "uid")
	if other == uid {
		return fail(c, apperrors.ErrSelfReference)
	}
	key := chat.DirectKey(uid, other)
	if _, err := h.chat.Authorize(key, uid); err != nil {
		return fail(c, err)
	}
	msgs, err := h.chat.Feed(key, repository.DefaultMessageLimit).Snapshot(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"key": key, "messages": msgs})
}

type pageCursor struct {
	Before   int64  `json:"before"`
	BeforeID string `json:"before_id"`
}

// Messages pages history; ?before=<unix ms>&before_id=<message id>&limit=<n>.
// The response carries the cursor of the next older page.
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	key := param(c, "key")
	if _, err := h.chat.Authorize(key, middleware.UserID(c)); err != nil {
		return fail(c, err)
	}
	var before repository.Cursor
	if ms := c.QueryInt("before", 0); ms > 0 {
		before = repository.Cursor{At: time.UnixMilli(int64(ms)).UTC(), ID: c.Query("before_id")}
	}
	msgs, err := h.chat.History(c.UserContext(), key, before, c.QueryInt("limit", repository.DefaultMessageLimit))
	if err != nil {
		return fail(c, err)
	}
	body := fiber.Map{"key": key, "messages": msgs}
	if len(msgs) > 0 {
		body["next"] = pageCursor{Before: msgs[0].CreatedAt.UnixMilli(), BeforeID: msgs[0].ID}
	}
	return c.JSON(body)
}

type sendReq struct {
	Text string `json:"text"`
}

func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var req sendReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	msg, err := h.chat.Send(c.UserContext(), param(c, "key"), middleware.UserID(c), req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}
