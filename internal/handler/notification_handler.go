package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// NotificationHandler serves notification channels over SSE and JSON. Staff may
// read exercise channels through the recipient query parameter.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
	timeout time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, timeout time.Duration) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
		timeout: timeout,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.RequireRole(middleware.StaffRoles()...), h.publish)
	router.Get("/stream", h.stream)
	router.Patch("/:id/read", h.markRead)
}

func (h *NotificationHandler) recipient(c *fiber.Ctx) (string, error) {
	requested := strings.TrimSpace(c.Query("recipient"))
	userID := userIDStringFromContext(c)
	if requested == "" || requested == userID {
		if userID == "" {
			return "", fiber.NewError(fiber.StatusUnauthorized, "user not authenticated")
		}
		return userID, nil
	}
	if !middleware.HasRole(c, middleware.StaffRoles()...) {
		return "", fiber.NewError(fiber.StatusForbidden, "insufficient permissions")
	}
	return requested, nil
}

func sendRecipientError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return utils.SendError(c, fiberErr.Code, fiberErr.Message)
	}
	return utils.SendError(c, fiber.StatusBadRequest, err.Error())
}

func (h *NotificationHandler) publish(c *fiber.Ctx) error {
	var payload dto.NotificationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	notification, err := h.service.Publish(requestContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid notification", validationDetails(err))
		}
		requestLogger(h.logger, c).Error().Err(err).Str("recipient", payload.Recipient).Msg("failed to publish notification")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to publish notification")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notification published", notification)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	recipient, err := h.recipient(c)
	if err != nil {
		return sendRecipientError(c, err)
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(requestContext(c), recipient, limit, offset)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("recipient", recipient).Msg("failed to list notifications")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list notifications")
	}

	return utils.OK(c, notifications, "notifications", fiber.Map{"limit": limit, "offset": offset, "count": len(notifications)})
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	recipient, err := h.recipient(c)
	if err != nil {
		return sendRecipientError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))

	stream, cleanup := h.service.Subscribe(recipient)

	keepAliveInterval := h.timeout
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case notification, ok := <-stream:
				if !ok {
					return
				}
				if err := writeNotificationEvent(w, notification); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write notification event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write notification keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	recipient, err := h.recipient(c)
	if err != nil {
		return sendRecipientError(c, err)
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(requestContext(c), id, recipient)
	if err != nil {
		if errors.Is(err, service.ErrNotificationNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("notification_id", id).Msg("failed to mark notification read")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to update notification")
	}

	return utils.SendSuccess(c, "notification updated", notification)
}

func writeNotificationEvent(w *bufio.Writer, notification interface{}) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: notification\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
