package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"notifier/internal/auth"
	"notifier/internal/logging"
)

// authenticate verifies the bearer token and stores the claims on the context
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		claims, err := s.verifier.Verify(token)
		if err != nil {
			return errUnauthorized.WithInternal(err)
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

// adminOnly admits administrators, or any caller holding the admin role
func adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := c.Get(claimsKey).(*auth.Claims)
		if !ok {
			return errUnauthorized
		}
		if !claims.Identity().HasAdminCapability() {
			return errForbidden
		}
		return next(c)
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := logging.Fields{
				"method":  v.Method,
				"path":    v.URIPath,
				"status":  v.Status,
				"latency": v.Latency.Round(time.Microsecond).String(),
			}
			if v.Error != nil {
				fields["error"] = v.Error
			}
			s.logger.Debug("request", fields)
			return nil
		},
	})
}
