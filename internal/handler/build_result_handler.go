package handler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

//go:embed schemas/build_result.schema.json
var buildResultSchemaSource string

var buildResultSchema = jsonschema.MustCompileString("build_result.schema.json", buildResultSchemaSource)

// BuildResultHandler receives build reports from CI agents and grades them.
type BuildResultHandler struct {
	service service.BuildResultService
	logger  zerolog.Logger
}

// NewBuildResultHandler constructs a BuildResultHandler.
func NewBuildResultHandler(service service.BuildResultService, logger zerolog.Logger) *BuildResultHandler {
	return &BuildResultHandler{
		service: service,
		logger:  logger.With().Str("component", "build_result_handler").Logger(),
	}
}

// Register binds the webhook route. The router is expected to be mounted at /build-results.
func (h *BuildResultHandler) Register(router fiber.Router) {
	router.Post("/", h.submit)
}

func (h *BuildResultHandler) submit(c *fiber.Ctx) error {
	body := c.Body()
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var document any
	if err := decoder.Decode(&document); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid json payload")
	}
	if t, _ := decoder.Token(); t != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid json payload")
	}
	if err := buildResultSchema.Validate(document); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "build result does not match schema", schemaViolations(err))
	}

	var payload dto.BuildResultRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Process(requestContext(c), service.SourceHTTP, payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.Fail(c, fiber.StatusBadRequest, "invalid build result", validationDetails(err))
		case errors.Is(err, service.ErrParticipationNotFound), errors.Is(err, service.ErrExerciseNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrLockTimeout):
			return utils.SendError(c, fiber.StatusServiceUnavailable, "participation is busy, retry later")
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("participation_id", payload.ParticipationID).Msg("failed to process build result")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to process build result")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "build result processed", response)
}

func schemaViolations(err error) map[string]string {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return nil
	}

	violations := make(map[string]string)
	var walk func(*jsonschema.ValidationError)
	walk = func(current *jsonschema.ValidationError) {
		if len(current.Causes) == 0 {
			location := current.InstanceLocation
			if location == "" {
				location = "/"
			}
			violations[location] = strings.TrimSpace(current.Message)
			return
		}
		for _, cause := range current.Causes {
			walk(cause)
		}
	}
	walk(validationErr)
	return violations
}

// ResultHandler exposes the latest graded result of a participation.
type ResultHandler struct {
	service service.ResultService
	logger  zerolog.Logger
}

// NewResultHandler constructs a ResultHandler.
func NewResultHandler(service service.ResultService, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		service: service,
		logger:  logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register binds the result routes under a /participations group.
func (h *ResultHandler) Register(router fiber.Router) {
	router.Get("/:id/results/latest", h.latest)
}

func (h *ResultHandler) latest(c *fiber.Ctx) error {
	participationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid participation id")
	}

	result, err := h.service.Latest(requestContext(c), participationID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "participation has no result")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("participation_id", participationID).Msg("failed to load latest result")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load result")
	}

	return utils.SendSuccess(c, "latest result", dto.NewResultResponse(result))
}
