package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-grader/internal/utils"
)

// RateLimit creates a per-caller rate limiter. Callers are keyed by their token
// subject, falling back to the client IP for anonymous requests.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := c.IP()
			if subject := c.Locals("user_id"); subject != nil {
				if value := fmt.Sprintf("%v", subject); value != "" && value != "0" {
					caller = value
				}
			}
			return fmt.Sprintf("%s:%s", identifier, caller)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
