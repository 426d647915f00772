package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	webmodels "github.com/huhumeme2002/Webtokenv2/backend/models"
	"github.com/huhumeme2002/Webtokenv2/backend/utils"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
	tokenutils "github.com/huhumeme2002/Webtokenv2/webtoken/utils"
)

// AdminLogin opens an admin session after verifying the shared secret.
func AdminLogin(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.AdminLoginRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		if !webApp.SessionService.VerifyAdminSecret(req.Secret) {
			slog.Warn("Admin login rejected",
				slog.String("type", "api"),
				slog.String("ip", utils.GetIPAddress(c)))
			return utils.SendUnauthorized(c, "Invalid admin secret")
		}

		if _, err := webApp.SessionService.CreateAdminSession(c); err != nil {
			slog.Error("Failed to create admin session", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to create session")
		}

		return utils.SendSuccess(c, nil, "Admin logged in")
	}
}

// AdminLogout closes the admin session
func AdminLogout(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		webApp.SessionService.DestroyAdminSession(c)
		return utils.SendSuccess(c, nil, "Admin logged out")
	}
}

// AdminStats returns the dashboard counters. The four counts are
// independent, so they run in parallel.
func AdminStats(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var stats webmodels.StatsResponse

		g, ctx := errgroup.WithContext(c.Context())
		g.Go(func() error {
			n, err := webApp.Repos.Token.CountAvailable(ctx)
			stats.TokensAvailable = n
			return err
		})
		g.Go(func() error {
			n, err := webApp.Repos.Token.CountExhausted(ctx)
			stats.TokensExhausted = n
			return err
		})
		g.Go(func() error {
			n, err := webApp.Repos.Key.CountActive(ctx)
			stats.KeysActive = n
			return err
		})
		g.Go(func() error {
			n, err := webApp.Repos.Key.CountExpired(ctx)
			stats.KeysExpired = n
			return err
		})

		if err := g.Wait(); err != nil {
			slog.Error("Failed to collect stats", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to collect statistics")
		}

		return utils.SendSuccess(c, stats, "Statistics retrieved")
	}
}

// KeysList lists keys, optionally filtered by a credential substring.
func KeysList(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		query := c.Query("q", "")
		page := c.QueryInt("page", 1)
		limit := c.QueryInt("limit", 50)
		if page < 1 {
			page = 1
		}

		keys, err := webApp.Repos.Key.Search(ctx, query, limit, (page-1)*limit)
		if err != nil {
			slog.Error("Failed to list keys", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to list keys")
		}

		dtos := make([]*webmodels.KeyDTO, 0, len(keys))
		for _, key := range keys {
			claimed, err := webApp.Repos.Key.CountDeliveries(ctx, key.ID)
			if err != nil {
				slog.Warn("Failed to count deliveries for key listing",
					slog.String("key_id", key.ID),
					slog.String("error", err.Error()))
			}
			dtos = append(dtos, &webmodels.KeyDTO{
				ID:           key.ID,
				KeyMask:      tokenutils.MaskKey(key.Key),
				ExpiresAt:    key.ExpiresAt,
				IsActive:     key.IsActive,
				LastTokenAt:  key.LastTokenAt,
				CreatedAt:    key.CreatedAt,
				ClaimedCount: claimed,
			})
		}

		return utils.SendSuccess(c, dtos, "Keys retrieved")
	}
}

// KeysCreate registers a new key credential.
func KeysCreate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		var req webmodels.CreateKeyRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}
		if err := req.Validate(); err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		key, err := webApp.Repos.Key.Create(ctx, req.Key, req.ExpiresAt)
		if err != nil {
			var ce *repositories.ConflictError
			if errors.As(err, &ce) {
				return utils.SendConflict(c, "KEY_EXISTS", "A key with this credential already exists", nil)
			}
			slog.Error("Failed to create key", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to create key")
		}

		slog.Info("Key created",
			slog.String("type", "api"),
			slog.String("key_id", key.ID),
			slog.Time("expires_at", key.ExpiresAt))

		return utils.SendCreated(c, &webmodels.KeyDTO{
			ID:        key.ID,
			KeyMask:   tokenutils.MaskKey(key.Key),
			ExpiresAt: key.ExpiresAt,
			IsActive:  key.IsActive,
			CreatedAt: key.CreatedAt,
		}, "Key created")
	}
}

// KeyToggle flips a key's active flag.
func KeyToggle(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		id := c.Params("id")
		if id == "" {
			return utils.SendBadRequest(c, "Key ID is required", nil)
		}

		key, err := webApp.Repos.Key.ToggleActive(ctx, id)
		if err != nil {
			var nfe *repositories.NotFoundError
			if errors.As(err, &nfe) {
				return utils.SendNotFound(c, "Key not found")
			}
			slog.Error("Failed to toggle key",
				slog.String("key_id", id),
				slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to toggle key")
		}

		slog.Info("Key toggled",
			slog.String("type", "api"),
			slog.String("key_id", key.ID),
			slog.Bool("is_active", key.IsActive))

		return utils.SendSuccess(c, &webmodels.KeyDTO{
			ID:          key.ID,
			KeyMask:     tokenutils.MaskKey(key.Key),
			ExpiresAt:   key.ExpiresAt,
			IsActive:    key.IsActive,
			LastTokenAt: key.LastTokenAt,
			CreatedAt:   key.CreatedAt,
		}, "Key updated")
	}
}

// TokensList lists pool tokens, optionally narrowed by claim state
// (all, available, partial, full).
func TokensList(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		filter := repositories.TokenFilter(c.Query("filter", string(repositories.FilterAll)))
		page := c.QueryInt("page", 1)
		limit := c.QueryInt("limit", 50)
		if page < 1 {
			page = 1
		}

		switch filter {
		case repositories.FilterAll, repositories.FilterAvailable, repositories.FilterPartial, repositories.FilterFull:
		default:
			return utils.SendBadRequest(c, "Invalid filter", map[string]string{"filter": string(filter)})
		}

		tokens, err := webApp.Repos.Token.List(ctx, filter, limit, (page-1)*limit)
		if err != nil {
			slog.Error("Failed to list tokens", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to list tokens")
		}

		dtos := make([]*webmodels.TokenDTO, 0, len(tokens))
		for _, token := range tokens {
			dtos = append(dtos, &webmodels.TokenDTO{
				ID:         token.ID,
				Value:      token.Value,
				ClaimCount: token.ClaimCount,
				AssignedTo: token.AssignedTo,
				AssignedAt: token.AssignedAt,
				CreatedAt:  token.CreatedAt,
			})
		}

		return utils.SendSuccess(c, dtos, "Tokens retrieved")
	}
}

// UploadTokens ingests a newline-separated batch of token values.
func UploadTokens(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		var req webmodels.UploadTokensRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		values := tokenutils.ParseTokenLines(req.Tokens)
		if len(values) == 0 {
			return utils.SendBadRequest(c, "No token values found", nil)
		}

		batchCap := webApp.Config.Pool.BatchCap()
		if len(values) > batchCap {
			return utils.SendBadRequest(c, "Too many tokens in one batch", map[string]string{
				"max": strconv.Itoa(batchCap),
			})
		}

		valid := make([]string, 0, len(values))
		rejected := 0
		for _, v := range values {
			if tokenutils.ValidTokenFormat(v) {
				valid = append(valid, v)
			} else {
				rejected++
			}
		}
		if len(valid) == 0 {
			return utils.SendBadRequest(c, "No valid token values found", map[string]string{
				"rejected": strconv.Itoa(rejected),
			})
		}

		result, err := webApp.Repos.Token.BulkInsert(ctx, valid)
		if err != nil {
			slog.Error("Failed to upload tokens", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to upload tokens")
		}

		slog.Info("Tokens uploaded",
			slog.String("type", "api"),
			slog.Int("inserted", result.Inserted),
			slog.Int("duplicates", result.Duplicates),
			slog.Int("rejected", rejected))

		return utils.SendSuccess(c, &webmodels.UploadResult{
			Inserted:   result.Inserted,
			Duplicates: result.Duplicates,
			Rejected:   rejected,
			Total:      len(values),
		}, "Tokens uploaded")
	}
}

// DeleteTokens removes a contiguous window of tokens starting at an
// anchor token, together with their delivery history.
func DeleteTokens(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		var req webmodels.DeleteTokensRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}
		if err := req.Validate(); err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		result, err := webApp.Repos.Token.BulkDelete(ctx, req.StartTokenID, req.Count)
		if err != nil {
			var nfe *repositories.NotFoundError
			if errors.As(err, &nfe) {
				return utils.SendNotFound(c, "Anchor token not found")
			}
			slog.Error("Failed to delete tokens", slog.String("error", err.Error()))
			return utils.SendInternalServerError(c, "Failed to delete tokens")
		}

		slog.Info("Tokens deleted",
			slog.String("type", "api"),
			slog.Int("tokens", result.DeletedTokens),
			slog.Int("deliveries", result.DeletedDeliveries))

		return utils.SendSuccess(c, &webmodels.DeleteResult{
			DeletedTokens:     result.DeletedTokens,
			DeletedDeliveries: result.DeletedDeliveries,
		}, "Tokens deleted")
	}
}
