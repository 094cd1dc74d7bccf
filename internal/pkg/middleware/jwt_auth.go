package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cubbyhq/cubby/internal/pkg/token"
	"github.com/cubbyhq/cubby/internal/pkg/usercontext"
)

// JWTAuthMiddleware resolves the bearer token on every request and populates
// the user context. Requests without a valid token pass through as anonymous;
// route guards decide whether that is acceptable.
func JWTAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			return anonymous(c)
		}

		claims, err := token.Parse(tokenString)
		if err != nil {
			return anonymous(c)
		}

		userCtx := usercontext.UserContext{
			UserID:     claims.UserID,
			Username:   claims.Name,
			IsLoggedIn: true,
			IsAdmin:    claims.Role == "admin",
		}
		c.Locals(usercontext.KeyUserContext, userCtx)
		c.Locals(usercontext.KeyAuthed, true)
		c.Locals(usercontext.KeyUserID, claims.UserID)
		c.Locals(usercontext.KeyUsername, claims.Name)
		c.Locals(usercontext.KeyIsAdmin, userCtx.IsAdmin)

		return c.Next()
	}
}

func anonymous(c *fiber.Ctx) error {
	c.Locals(usercontext.KeyUserContext, usercontext.UserContext{})
	c.Locals(usercontext.KeyAuthed, false)
	return c.Next()
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
