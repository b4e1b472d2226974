// notes/auth/auth.go
package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// TokenHeader is checked first; Authorization: Bearer and a token query
// parameter are accepted too, the latter for EventSource clients that cannot
// set headers.
const TokenHeader = "X-Lumi-Token"

const subjectKey = "lumi_subject"

// Middleware rejects requests without a valid session token and stores the
// token's subject for Subject.
func Middleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := tokenFrom(c)
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}
		claims, err := tokens.Verify(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(subjectKey, claims.Subject)
		return c.Next()
	}
}

// Subject returns the session identifier stored by Middleware.
func Subject(c *fiber.Ctx) string {
	s, _ := c.Locals(subjectKey).(string)
	return s
}

func tokenFrom(c *fiber.Ctx) string {
	if t := c.Get(TokenHeader); t != "" {
		return t
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}
