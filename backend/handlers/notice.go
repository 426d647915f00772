package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	webmodels "github.com/huhumeme2002/Webtokenv2/backend/models"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
)

func noticeResponse(notice *models.Notice) *webmodels.NoticeResponse {
	if notice == nil {
		return nil
	}
	updatedAt := notice.UpdatedAt
	return &webmodels.NoticeResponse{
		Content:     notice.Content,
		DisplayMode: string(notice.DisplayMode),
		IsActive:    notice.IsActive,
		UpdatedAt:   &updatedAt,
	}
}

// NoticeActive returns the currently active notice, or null data when
// none is active. Public, no session required.
func NoticeActive(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		notice, err := webApp.NoticeService.GetActive(c.Context())
		if err != nil {
			slog.Error("Failed to load notice", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to load notice")
		}

		return utils.SendSuccess(c, noticeResponse(notice), "Notice retrieved")
	}
}

// NoticeAdminGet returns the stored notice regardless of active state.
func NoticeAdminGet(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		notice, err := webApp.NoticeService.GetLatest(c.Context())
		if err != nil {
			slog.Error("Failed to load notice", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to load notice")
		}

		return utils.SendSuccess(c, noticeResponse(notice), "Notice retrieved")
	}
}

// NoticeAdminSave creates or replaces the notice.
func NoticeAdminSave(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.NoticeRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		notice, err := webApp.NoticeService.Save(c.Context(), req.Content, req.DisplayMode, req.IsActive)
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		return utils.SendSuccess(c, noticeResponse(notice), "Notice saved")
	}
}
