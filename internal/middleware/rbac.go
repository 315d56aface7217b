package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/utils"
)

// Roles recognised by the grading API.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleEditor     = "editor"
	RoleStudent    = "student"
	RoleBuildAgent = "ci"
)

// StaffRoles lists the roles allowed to configure exercises and read staff channels.
func StaffRoles() []string {
	return []string{RoleAdmin, RoleInstructor, RoleEditor}
}

// HasRole reports whether the authenticated user carries one of roles.
func HasRole(c *fiber.Ctx, roles ...string) bool {
	current := normalizeRoleValue(c.Locals("user_role"))
	if current == "" {
		return false
	}
	for _, role := range roles {
		if strings.ToLower(strings.TrimSpace(role)) == current {
			return true
		}
	}
	return false
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		roleValue := c.Locals("user_role")
		role := normalizeRoleValue(roleValue)
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
