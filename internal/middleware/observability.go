package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/observability"
)

var latencyBuckets = []struct {
	limit time.Duration
	label string
}{
	{25 * time.Millisecond, "<=25ms"},
	{50 * time.Millisecond, "<=50ms"},
	{100 * time.Millisecond, "<=100ms"},
	{250 * time.Millisecond, "<=250ms"},
	{500 * time.Millisecond, "<=500ms"},
	{time.Second, "<=1s"},
}

// Observability records Prometheus metrics and a structured access log for API
// endpoints. Streaming endpoints (SSE, websocket) are logged but kept out of the
// latency histogram since their duration is the lifetime of the subscription.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		if !strings.HasPrefix(c.Path(), "/api/") {
			return err
		}

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(method, route, statusLabel).Inc()
		if !isStreamRoute(route) {
			observability.APILatency().WithLabelValues(method, route).Observe(duration.Seconds())
		}
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		event := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Str("role", normalizeRoleValue(c.Locals("user_role"))).
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(duration)).
			Logger()

		switch {
		case status >= fiber.StatusInternalServerError:
			event.Error().Msg("request failed")
		case status >= fiber.StatusBadRequest:
			event.Warn().Msg("request completed with client error")
		default:
			event.Info().Msg("request completed")
		}

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func isStreamRoute(route string) bool {
	return strings.HasSuffix(route, "/stream") || strings.HasSuffix(route, "/ws")
}

func latencyBucket(duration time.Duration) string {
	for _, bucket := range latencyBuckets {
		if duration <= bucket.limit {
			return bucket.label
		}
	}
	return ">1s"
}
