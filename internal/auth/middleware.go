package auth

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const adminLocalsKey = "auth_admin"

// AdminMiddleware admits requests that carry the admin token in the query
// string, the JSON body, or a bearer header.
type AdminMiddleware struct {
	token AdminToken
}

// NewAdminMiddleware constructs middleware.
func NewAdminMiddleware(token AdminToken) *AdminMiddleware {
	return &AdminMiddleware{token: token}
}

// Handle rejects requests without a valid token with the storefront's 403 body.
func (m *AdminMiddleware) Handle(c *fiber.Ctx) error {
	if !m.token.Verify(tokenFromRequest(c)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": true, "message": "Unauthorized"})
	}
	c.Locals(adminLocalsKey, true)
	return c.Next()
}

// IsAdmin reports whether the request passed the middleware.
func IsAdmin(c *fiber.Ctx) bool {
	ok, _ := c.Locals(adminLocalsKey).(bool)
	return ok
}

func tokenFromRequest(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	var body struct {
		Token string `json:"token"`
	}
	if len(c.Body()) > 0 && json.Unmarshal(c.Body(), &body) == nil {
		return body.Token
	}
	return ""
}
