// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	// IdentityHeader carries the wallet address resolved by the wallet provider.
	IdentityHeader = "X-Wallet-Address"

	identityLocalKey = "identity"
)

// IdentityMiddleware requires an identity on the request and stores it in
// c.Locals for handlers. The address is treated as an opaque string.
func IdentityMiddleware(log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		identity := strings.TrimSpace(c.Get(IdentityHeader))
		if identity == "" {
			log.Debug("request without identity", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + IdentityHeader + " header",
			})
		}

		c.Locals(identityLocalKey, identity)
		return c.Next()
	}
}

// Identity returns the identity set by IdentityMiddleware, or "".
func Identity(c *fiber.Ctx) string {
	identity, _ := c.Locals(identityLocalKey).(string)
	return identity
}
