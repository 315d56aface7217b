package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/utils"
)

const healthProbeTimeout = 2 * time.Second

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Components  map[string]string `json:"components,omitempty"`
}

// HealthProbe checks one backing dependency such as the database or a broker.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthCheck returns a handler that reports application health information.
// Any failing probe degrades the status and answers 503.
func HealthCheck(cfg config.Config, probes ...HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(probes) > 0 {
			payload.Components = make(map[string]string, len(probes))
		}
		for _, probe := range probes {
			ctx, cancel := context.WithTimeout(requestContext(c), healthProbeTimeout)
			err := probe.Check(ctx)
			cancel()
			if err != nil {
				payload.Components[probe.Name] = "down"
				payload.Status = "degraded"
				continue
			}
			payload.Components[probe.Name] = "ok"
		}

		if payload.Status != "ok" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
				Success: false,
				Data:    payload,
				Message: "service degraded",
			})
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
