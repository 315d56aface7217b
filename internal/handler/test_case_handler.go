package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

const (
	testCaseSnapshotTrigger = "snapshot"
	websocketPingInterval   = 30 * time.Second
	websocketWriteTimeout   = 10 * time.Second
)

// TestCaseHandler exposes the test case registry of an exercise.
type TestCaseHandler struct {
	testCases    service.TestCaseService
	reEvaluation service.ReEvaluationService
	events       service.TestCaseEventBroker
	logger       zerolog.Logger
}

// NewTestCaseHandler constructs a TestCaseHandler.
func NewTestCaseHandler(testCases service.TestCaseService, reEvaluation service.ReEvaluationService, events service.TestCaseEventBroker, logger zerolog.Logger) *TestCaseHandler {
	return &TestCaseHandler{
		testCases:    testCases,
		reEvaluation: reEvaluation,
		events:       events,
		logger:       logger.With().Str("component", "test_case_handler").Logger(),
	}
}

// Register binds the registry routes under an /exercises group.
func (h *TestCaseHandler) Register(router fiber.Router) {
	router.Get("/:id/test-cases", h.list)
	router.Patch("/:id/test-cases", h.update)
	router.Post("/:id/test-cases/reset", h.reset)
	router.Post("/:id/re-evaluate", h.reEvaluate)
	router.Get("/:id/test-cases/ws", h.upgrade, websocket.New(h.stream))
}

func (h *TestCaseHandler) list(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid exercise id")
	}

	testCases, err := h.testCases.List(requestContext(c), exerciseID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to list test cases")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list test cases")
	}

	return utils.OK(c, dto.NewTestCaseResponseSlice(testCases), "test cases", fiber.Map{"total": len(testCases)})
}

func (h *TestCaseHandler) update(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid exercise id")
	}

	var payload dto.TestCaseUpdateBatch
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	ctx := requestContext(c)
	change, err := h.testCases.Update(ctx, exerciseID, payload)
	if err != nil {
		return h.registryError(c, exerciseID, err)
	}

	return h.respondWithChange(c, ctx, exerciseID, change, "test cases updated")
}

func (h *TestCaseHandler) reset(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid exercise id")
	}

	ctx := requestContext(c)
	change, err := h.testCases.Reset(ctx, exerciseID)
	if err != nil {
		return h.registryError(c, exerciseID, err)
	}

	return h.respondWithChange(c, ctx, exerciseID, change, "test cases reset")
}

func (h *TestCaseHandler) respondWithChange(c *fiber.Ctx, ctx context.Context, exerciseID uint, change dto.TestCaseChangeResponse, message string) error {
	response := dto.TestCaseConfigurationResponse{TestCaseChangeResponse: change}

	reEvaluate, _ := strconv.ParseBool(c.Query("reevaluate"))
	if reEvaluate && change.Changed {
		summary, err := h.reEvaluation.ReEvaluate(ctx, exerciseID)
		if err != nil {
			requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("re-evaluation after registry change failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "test cases saved but re-evaluation failed")
		}
		response.ReEvaluation = &summary
	}

	return utils.SendSuccess(c, message, response)
}

func (h *TestCaseHandler) reEvaluate(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid exercise id")
	}

	summary, err := h.reEvaluation.ReEvaluate(requestContext(c), exerciseID)
	if err != nil {
		if errors.Is(err, service.ErrExerciseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("re-evaluation failed")
		return utils.Fail(c, fiber.StatusInternalServerError, "re-evaluation failed", summary)
	}

	return utils.SendSuccess(c, "results re-evaluated", summary)
}

func (h *TestCaseHandler) registryError(c *fiber.Ctx, exerciseID uint, err error) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid test case update", validationDetails(err))
	case errors.Is(err, service.ErrInvalidTestCaseUpdate):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrExerciseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrLockTimeout):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "registry is busy, retry later")
	default:
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to change test cases")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to change test cases")
	}
}

func (h *TestCaseHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid exercise id")
	}
	c.Locals("exercise_id", exerciseID)
	return c.Next()
}

func (h *TestCaseHandler) stream(conn *websocket.Conn) {
	exerciseID, _ := conn.Locals("exercise_id").(uint)
	correlationID, _ := conn.Locals("correlation_id").(string)
	ctx, cancel := context.WithCancel(middleware.ContextWithCorrelation(context.Background(), correlationID))
	defer cancel()

	events, cleanup := h.events.Subscribe(exerciseID)
	defer cleanup()

	logger := h.logger.With().Uint("exercise_id", exerciseID).Logger()

	testCases, err := h.testCases.List(ctx, exerciseID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load test case snapshot")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"))
		return
	}
	snapshot := dto.TestCaseEvent{
		ExerciseID: exerciseID,
		Trigger:    testCaseSnapshotTrigger,
		TestCases:  dto.NewTestCaseResponseSlice(testCases),
		ChangedAt:  time.Now().UTC(),
	}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug().Msg("test case stream connected")
	defer logger.Debug().Msg("test case stream disconnected")

	ticker := time.NewTicker(websocketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				logger.Debug().Err(err).Msg("failed to write test case event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(websocketWriteTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event dto.TestCaseEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}
