package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-grader/internal/utils"
)

// rolePriority orders roles from most to least privileged; a token carrying
// several roles is treated as its most privileged one.
var rolePriority = []string{RoleAdmin, RoleInstructor, RoleEditor, RoleBuildAgent, RoleStudent}

// JWTProtected returns a middleware that validates HS256 bearer tokens. Numeric
// subjects are stored as uint user ids, other subjects (build agents) as strings.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(strings.TrimSpace(authorization[len(bearer):]), claims, keyFunc)
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if subject, ok := subjectFromClaims(claims); ok {
			c.Locals("user_id", subject)
		}
		if role := roleFromClaims(claims); role != "" {
			c.Locals("user_role", role)
		}

		return c.Next()
	}
}

func subjectFromClaims(claims jwt.MapClaims) (interface{}, bool) {
	for _, key := range []string{"sub", "user_id", "id"} {
		switch v := claims[key].(type) {
		case float64:
			if v > 0 {
				return uint(v), true
			}
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
				return uint(parsed), true
			}
			return trimmed, true
		}
	}
	return nil, false
}

func roleFromClaims(claims jwt.MapClaims) string {
	granted := make(map[string]struct{})
	for _, key := range []string{"role", "roles"} {
		switch v := claims[key].(type) {
		case string:
			granted[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
		case []interface{}:
			for _, item := range v {
				if role, ok := item.(string); ok {
					granted[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
				}
			}
		}
	}

	for _, role := range rolePriority {
		if _, ok := granted[role]; ok {
			return role
		}
	}
	return ""
}
