package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type ChannelsHandler struct {
	sessions *Sessions
}

func NewChannelsHandler(s *Sessions) *ChannelsHandler {
	return &ChannelsHandler{sessions: s}
}

func (h *ChannelsHandler) List(c *fiber.Ctx) error {
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sess.State())
}

type channelNameReq struct {
	Name string `json:"name"`
}

func (h *ChannelsHandler) Add(c *fiber.Ctx) error {
	var req channelNameReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	if _, err := sess.Channels.Add(req.Name); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess.State())
}

func (h *ChannelsHandler) Rename(c *fiber.Ctx) error {
	var req channelNameReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	if _, err := sess.Channels.Rename(param(c, "name"), req.Name); err != nil {
		return fail(c, err)
	}
	return c.JSON(sess.State())
}

type reorderReq struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (h *ChannelsHandler) Reorder(c *fiber.Ctx) error {
	var req reorderReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	if err := sess.Channels.Reorder(req.From, req.To); err != nil {
		return fail(c, err)
	}
	return c.JSON(sess.State())
}

func (h *ChannelsHandler) Select(c *fiber.Ctx) error {
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	if _, err := sess.Channels.Select(param(c, "name")); err != nil {
		return fail(c, err)
	}
	return c.JSON(sess.State())
}

// Selection reports the current target, whichever component set it.
func (h *ChannelsHandler) Selection(c *fiber.Ctx) error {
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"selected": sess.Selection.Current()})
}
