package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	webmodels "github.com/huhumeme2002/Webtokenv2/backend/models"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
	"github.com/huhumeme2002/Webtokenv2/webtoken/allocation"
)

// Claim hands the authenticated claimant one token from the pool.
func Claim(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		session, ok := utils.ExtractUserSession(c)
		if !ok {
			return utils.SendUnauthorized(c, "Authentication required")
		}

		grant, err := webApp.Engine.Claim(ctx, session.KeyID)
		if err != nil {
			var rle *allocation.RateLimitedError
			switch {
			case errors.As(err, &rle):
				return utils.SendRateLimited(c, rle.BlockedUntil)
			case errors.Is(err, allocation.ErrUnauthorized):
				// The key was deactivated, expired, or deleted since login
				webApp.SessionService.DestroySession(c)
				return utils.SendUnauthorized(c, "Key is no longer valid")
			case errors.Is(err, allocation.ErrOutOfStock):
				return utils.SendConflict(c, "OUT_OF_STOCK", "No tokens available right now", nil)
			default:
				slog.Error("Claim failed",
					slog.String("key_id", session.KeyID),
					slog.String("error", err.Error()))
				return utils.SendInternalServerError(c, "Failed to claim token")
			}
		}

		return utils.SendSuccess(c, &webmodels.ClaimResponse{
			Token:           grant.Token,
			CreatedAt:       grant.CreatedAt,
			NextAvailableAt: grant.NextAvailableAt,
		}, "Token claimed")
	}
}
