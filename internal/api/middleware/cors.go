package middleware

import (
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SecureCORS returns the CORS middleware for the agent dashboard. Allowed
// origins come from the ALLOWED_ORIGINS environment variable; the wildcard
// origin is refused in production since the ticket API carries credentials.
func SecureCORS() echo.MiddlewareFunc {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		// Local dashboard dev server
		allowedOrigins = "http://localhost:3000"
	}

	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	env := os.Getenv("APP_ENV")
	if env == "production" {
		filteredOrigins := make([]string, 0, len(origins))
		for _, origin := range origins {
			if origin != "*" {
				filteredOrigins = append(filteredOrigins, origin)
			}
		}
		origins = filteredOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
	}

	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
