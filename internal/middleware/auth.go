package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/models"
)

// MinAPIKeyLength is the minimum accepted length for API keys
const MinAPIKeyLength = 32

// APIKeyAuth creates an API key authentication middleware. Keys shorter
// than MinAPIKeyLength are rejected at setup time.
func APIKeyAuth(logger *logging.Logger, apiKeys []string, enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	keys := make(map[string]bool)
	for _, key := range apiKeys {
		if len(key) < MinAPIKeyLength || strings.TrimSpace(key) == "" {
			logger.Warn("Ignoring API key that is too short",
				"key_prefix", maskAPIKey(key),
				"min_length", MinAPIKeyLength)
			continue
		}
		keys[key] = true
	}

	if len(keys) == 0 && len(apiKeys) > 0 {
		logger.Error("No valid API keys configured, every request will be rejected")
	}

	return func(c *fiber.Ctx) error {
		// X-API-Key header, or Authorization with optional Bearer prefix
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}

		if apiKey == "" {
			logger.Warn("API key missing",
				"path", c.Path(),
				"ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    "UNAUTHORIZED",
					Message: "API key is required. Provide it via X-API-Key or Authorization header.",
				},
			})
		}

		if !keys[apiKey] {
			logger.Warn("Invalid API key",
				"path", c.Path(),
				"ip", c.IP(),
				"key_prefix", maskAPIKey(apiKey))
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    "UNAUTHORIZED",
					Message: "Invalid API key.",
				},
			})
		}

		return c.Next()
	}
}

// maskAPIKey masks an API key for logging (show only first 4 chars)
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
