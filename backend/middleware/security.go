package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/huhumeme2002/Webtokenv2/backend/models"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
	"github.com/huhumeme2002/Webtokenv2/webtoken/allocation"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
)

// CustomErrorHandler maps domain errors escaping a handler to the JSON
// envelope. Handlers normally translate errors themselves; this is the
// net underneath them.
func CustomErrorHandler(c *fiber.Ctx, err error) error {
	var rle *allocation.RateLimitedError
	if errors.As(err, &rle) {
		return utils.SendRateLimited(c, rle.BlockedUntil)
	}

	if errors.Is(err, allocation.ErrUnauthorized) {
		return utils.SendUnauthorized(c, "Invalid or expired key")
	}

	if errors.Is(err, allocation.ErrOutOfStock) {
		return utils.SendConflict(c, "OUT_OF_STOCK", "No tokens available", nil)
	}

	var nfe *repositories.NotFoundError
	if errors.As(err, &nfe) {
		return utils.SendNotFound(c, nfe.Error())
	}

	var ce *repositories.ConflictError
	if errors.As(err, &ce) {
		return utils.SendConflict(c, "CONFLICT", ce.Error(), nil)
	}

	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= 500 {
		slog.Error("Unhandled request error",
			slog.String("type", "api"),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}

	return utils.SendJSON(c, code, models.NewErrorResponse("REQUEST_FAILED", message, nil))
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		return c.Next()
	}
}
