package middleware

import (
	"crypto/subtle"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
)

// WebhookSecretHeader carries the shared secret on inbound mail webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth validates the shared secret on inbound mail webhook requests.
// Uses constant-time comparison to prevent timing attacks.
func WebhookAuth(logger *slog.Logger) echo.MiddlewareFunc {
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" && logger != nil {
		logger.Warn("WEBHOOK_SECRET not set - inbound webhook is UNSECURED")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip if secret not configured (development mode)
			if secret == "" {
				return next(c)
			}

			provided := c.Request().Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				if logger != nil {
					logger.Warn("invalid webhook secret",
						slog.String("ip", c.RealIP()),
						slog.String("path", c.Path()))
				}
				return echo.NewHTTPError(401, map[string]string{
					"error": "invalid webhook secret",
					"code":  "UNAUTHORIZED",
				})
			}

			return next(c)
		}
	}
}
