package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type FriendsHandler struct {
	sessions *Sessions
}

func NewFriendsHandler(s *Sessions) *FriendsHandler {
	return &FriendsHandler{sessions: s}
}

func (h *FriendsHandler) List(c *fiber.Ctx) error {
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	refs, err := sess.Friends.List(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"friends": refs})
}

type addFriendReq struct {
	Name string `json:"name"`
}

func (h *FriendsHandler) Add(c *fiber.Ctx) error {
	var req addFriendReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	ref, err := sess.Friends.Add(c.UserContext(), req.Name)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"friend": ref})
}

func (h *FriendsHandler) Remove(c *fiber.Ctx) error {
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	if err := sess.Friends.Remove(c.UserContext(), param(c, "id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *FriendsHandler) Select(c *fiber.Ctx) error {
	sess, err := h.sessions.current(c)
	if err != nil {
		return fail(c, err)
	}
	t, err := sess.Friends.Select(c.UserContext(), param(c, "id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"selected": t})
}
