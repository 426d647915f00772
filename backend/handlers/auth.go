package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	webmodels "github.com/huhumeme2002/Webtokenv2/backend/models"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
	"github.com/huhumeme2002/Webtokenv2/webtoken/ratelimit"
	tokenutils "github.com/huhumeme2002/Webtokenv2/webtoken/utils"
)

// Login authenticates a claimant by their key credential and opens a
// session. The credential itself never appears in logs or responses.
func Login(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		var req webmodels.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}
		if err := req.Validate(); err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		key, err := webApp.Repos.Key.GetByCredential(ctx, req.Key)
		if err != nil {
			slog.Warn("Login rejected: unknown key",
				slog.String("type", "api"),
				slog.String("ip", utils.GetIPAddress(c)))
			return utils.SendUnauthorized(c, "Invalid key")
		}

		if !key.IsActive {
			return utils.SendUnauthorized(c, "Key is deactivated")
		}
		if !key.ExpiresAt.After(time.Now()) {
			return utils.SendUnauthorized(c, "Key has expired")
		}

		if _, err := webApp.SessionService.CreateSession(c, key.ID); err != nil {
			slog.Error("Failed to create session",
				slog.String("key_id", key.ID),
				slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to create session")
		}

		return utils.SendSuccess(c, fiber.Map{
			"keyId":     key.ID,
			"keyMask":   tokenutils.MaskKey(key.Key),
			"expiresAt": key.ExpiresAt,
		}, "Logged in successfully")
	}
}

// Logout closes the claimant session
func Logout(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		webApp.SessionService.DestroySession(c)
		return utils.SendSuccess(c, nil, "Logged out successfully")
	}
}

// Me returns the authenticated claimant's account view, including when
// their next claim becomes available.
func Me(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		session, ok := utils.ExtractUserSession(c)
		if !ok {
			return utils.SendUnauthorized(c, "Authentication required")
		}

		key, err := webApp.Repos.Key.GetByID(ctx, session.KeyID)
		if err != nil {
			// Key deleted while the session was live
			webApp.SessionService.DestroySession(c)
			return utils.SendUnauthorized(c, "Key no longer exists")
		}

		claimed, err := webApp.Repos.Key.CountDeliveries(ctx, key.ID)
		if err != nil {
			slog.Error("Failed to count deliveries",
				slog.String("key_id", key.ID),
				slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to load account")
		}

		return utils.SendSuccess(c, &webmodels.MeResponse{
			KeyID:           key.ID,
			KeyMask:         tokenutils.MaskKey(key.Key),
			IsActive:        key.IsActive,
			ExpiresAt:       key.ExpiresAt,
			LastTokenAt:     key.LastTokenAt,
			ClaimedCount:    claimed,
			NextAvailableAt: ratelimit.NextAvailableAt(key.LastTokenAt, webApp.Engine.Cooldown()),
		}, "Account retrieved")
	}
}
