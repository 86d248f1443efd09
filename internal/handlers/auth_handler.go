package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/session"
)

type AuthHandler struct {
	svc      *auth.Service
	sessions *session.Manager
}

func NewAuthHandler(svc *auth.Service, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{svc: svc, sessions: sessions}
}

func signedIn(c *fiber.Ctx, status int, u *models.User, t *models.AuthTokens) error {
	return c.Status(status).JSON(fiber.Map{"user": u, "tokens": t})
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req auth.SignUpInput
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	u, t, err := h.svc.SignUp(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return signedIn(c, fiber.StatusCreated, u, t)
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req auth.SignInInput
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	u, t, err := h.svc.SignIn(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return signedIn(c, fiber.StatusOK, u, t)
}

type federatedReq struct {
	IDToken string `json:"id_token"`
}

func (h *AuthHandler) Federated(c *fiber.Ctx) error {
	var req federatedReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	u, t, err := h.svc.SignInWithFederatedProvider(c.UserContext(), req.IDToken)
	if err != nil {
		return fail(c, err)
	}
	return signedIn(c, fiber.StatusOK, u, t)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshReq
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	t, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"tokens": t})
}

// SignOut revokes the refresh token and tears the session down, which takes presence offline.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	uid := middleware.UserID(c)
	if err := h.svc.SignOut(c.UserContext(), uid); err != nil {
		return fail(c, err)
	}
	h.sessions.Teardown(c.UserContext(), uid)
	return c.SendStatus(fiber.StatusNoContent)
}
