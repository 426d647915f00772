package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/huhumeme2002/Webtokenv2/backend/services"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
)

// AuthRequired middleware ensures the request carries a valid claimant session
func AuthRequired(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := sessions.GetSession(c)
		if err != nil {
			slog.Debug("Auth required: no valid session", slog.String("error", err.Error()))
			return utils.SendUnauthorized(c, "Authentication required")
		}

		if session == nil || session.KeyID == "" {
			slog.Debug("Auth required: invalid session")
			return utils.SendUnauthorized(c, "Authentication required")
		}

		// Store claimant in context
		c.Locals("user", session)

		return c.Next()
	}
}

// AdminRequired middleware ensures the request carries a valid admin session
func AdminRequired(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := sessions.GetAdminSession(c)
		if err != nil {
			slog.Warn("Admin required: no valid admin session",
				slog.String("ip", utils.GetIPAddress(c)),
				slog.String("path", c.Path()))
			return utils.SendUnauthorized(c, "Admin authentication required")
		}

		c.Locals("admin", session)

		return c.Next()
	}
}

// OptionalAuth adds claimant info to context if authenticated, but doesn't require it
func OptionalAuth(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := sessions.GetSession(c)
		if err == nil && session != nil && session.KeyID != "" {
			c.Locals("user", session)
		}

		return c.Next()
	}
}
