/**
 * @description
 * Admin authentication middleware.
 * Validates Bearer JWTs against the identity provider's JWKS and admits only
 * subjects on the ADMIN_SUBJECTS allow-list.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 * - github.com/golang-jwt/jwt/v5: JWT parsing
 * - github.com/MicahParks/keyfunc/v2: JWKS fetching and caching
 *
 * @notes
 * - Requires ADMIN_JWKS_URL. Without it every admin route answers 500.
 * - Caches JWKS keys to prevent excessive network calls.
 */

package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/logger"
)

const subjectLocal = "admin_sub"

// Auth holds the key lookup and the admin allow-list.
type Auth struct {
	keyfunc jwt.Keyfunc
	admins  map[string]bool
	jwks    *keyfunc.JWKS
}

// NewAuth builds the middleware over any key lookup (tests use an HMAC key).
func NewAuth(kf jwt.Keyfunc, adminSubjects []string) *Auth {
	admins := make(map[string]bool, len(adminSubjects))
	for _, s := range adminSubjects {
		if s = strings.TrimSpace(s); s != "" {
			admins[s] = true
		}
	}
	return &Auth{keyfunc: kf, admins: admins}
}

// InitAuthMiddleware initializes the JWKS cache. Should be called at startup.
func InitAuthMiddleware(cfg *config.Config) (*Auth, error) {
	if cfg.Services.JWKSURL == "" {
		logger.Info("⚠️ Warning: ADMIN_JWKS_URL is empty. Admin routes are disabled.")
		return NewAuth(nil, cfg.Services.AdminSubjects), nil
	}
	if len(cfg.Services.AdminSubjects) == 0 {
		logger.Info("⚠️ Warning: ADMIN_SUBJECTS is empty. No token will pass admin checks.")
	}

	// Refresh the JWKS every hour.
	jwks, err := keyfunc.Get(cfg.Services.JWKSURL, keyfunc.Options{
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			logger.Error("There was an error with the JWKS refresh: %v", err)
		},
	})
	if err != nil {
		return nil, err
	}

	auth := NewAuth(jwks.Keyfunc, cfg.Services.AdminSubjects)
	auth.jwks = jwks
	logger.Info("✅ Auth Middleware Initialized with JWKS")
	return auth, nil
}

// Close stops the background JWKS refresh.
func (a *Auth) Close() {
	if a != nil && a.jwks != nil {
		a.jwks.EndBackground()
	}
}

// AdminOnly protects routes requiring an allow-listed subject
func (a *Auth) AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a == nil || a.keyfunc == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Auth configuration not initialized",
			})
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token format"})
		}

		token, err := jwt.Parse(tokenString, a.keyfunc)
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing subject"})
		}

		if !a.admins[sub] {
			logger.Warn("Admin route %s denied for subject %s", c.Path(), sub)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}

		c.Locals(subjectLocal, sub)
		return c.Next()
	}
}

// GetSubject returns the authenticated admin subject from context
func GetSubject(c *fiber.Ctx) (string, error) {
	sub, ok := c.Locals(subjectLocal).(string)
	if !ok {
		return "", errors.New("subject not found in context")
	}
	return sub, nil
}
