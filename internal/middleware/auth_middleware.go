package middleware

import (
	"errors"
	"slices"
	"strings"

	"go-pricebook-sync/pkg/jwt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Locals keys set by RequireAuth.
const (
	LocalUserName   = "user_name"
	LocalPrivileges = "user_privileges"
)

var errAuthFormat = errors.New("invalid authorization format, use: Bearer <token>")

// RequireAuth validates the bearer token and stores the caller in Locals.
// Browsers cannot set headers on a websocket upgrade, so those requests may
// pass the token as ?token= instead.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals(LocalUserName, claims.Name)
		c.Locals(LocalPrivileges, claims.Privileges)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return "", errAuthFormat
		}
		return strings.TrimSpace(token), nil
	}
	if websocket.IsWebSocketUpgrade(c) {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
	}
	return "", jwt.ErrMissingToken
}

// UserName returns the authenticated caller, or fallback on public routes.
func UserName(c *fiber.Ctx, fallback string) string {
	if name, ok := c.Locals(LocalUserName).(string); ok && name != "" {
		return name
	}
	return fallback
}

// RequirePrivilege checks if the authenticated user has the required privilege
func RequirePrivilege(requiredPrivilege string) fiber.Handler {
	return RequireAnyPrivilege(requiredPrivilege)
}

// RequireAnyPrivilege checks if the user has at least one of the specified privileges
func RequireAnyPrivilege(requiredPrivileges ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		granted, ok := c.Locals(LocalPrivileges).([]string)
		if !ok {
			return c.Status(403).JSON(fiber.Map{"error": "No privileges found"})
		}

		for _, want := range requiredPrivileges {
			if slices.Contains(granted, want) {
				return c.Next()
			}
		}

		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires one of " + strings.Join(requiredPrivileges, ", "),
		})
	}
}
