package handlers

import (
	"github.com/gofiber/fiber/v2"

	webmodels "github.com/huhumeme2002/Webtokenv2/backend/models"
	webservices "github.com/huhumeme2002/Webtokenv2/backend/services"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
	"github.com/huhumeme2002/Webtokenv2/webtoken"
	"github.com/huhumeme2002/Webtokenv2/webtoken/allocation"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database"
)

// WebApp represents the web application with all dependencies
type WebApp struct {
	Config         *webtoken.Config
	DB             *database.DB
	Repos          *webmodels.Repositories
	Engine         *allocation.Engine
	SessionService *webservices.SessionService
	NoticeService  *webservices.NoticeService
	Version        string
	Commit         string
}

func HealthCheck(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := webmodels.NewHealthCheck(webApp.Version)

		if err := webApp.DB.GetPool().Ping(c.Context()); err != nil {
			health.AddComponent("database", "unhealthy", err.Error(), nil)
		} else {
			health.AddComponent("database", "healthy", "", nil)
		}

		status := fiber.StatusOK
		if health.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}

		return utils.SendJSON(c, status, webmodels.NewSuccessResponse(health, "Health check"))
	}
}
