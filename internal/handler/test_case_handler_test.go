package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/service"
)

func registryFixture() []models.TestCase {
	return []models.TestCase{
		{ID: 1, ExerciseID: 5, TestName: "testSort", Weight: 1, BonusMultiplier: 1, Visibility: models.VisibilityAlways, Active: true, Type: models.TestCaseTypeBehavioral},
		{ID: 2, ExerciseID: 5, TestName: "testMerge", Weight: 3, BonusMultiplier: 1, Visibility: models.VisibilityAfterDueDate, Active: true, Type: models.TestCaseTypeBehavioral},
	}
}

func newTestCaseApp(testCases *stubTestCaseService, reEvaluation *stubReEvaluationService, events service.TestCaseEventBroker) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	handler.NewTestCaseHandler(testCases, reEvaluation, events, zerolog.Nop()).Register(app.Group("/api/v2/grading/exercises"))
	return app
}

func TestTestCaseHandlerList(t *testing.T) {
	app := newTestCaseApp(&stubTestCaseService{testCases: registryFixture()}, &stubReEvaluationService{}, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/grading/exercises/5/test-cases", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []dto.TestCaseResponse `json:"data"`
		Meta map[string]int         `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Data, 2)
	require.Equal(t, "AFTER_DUE_DATE", payload.Data[1].Visibility)
	require.Equal(t, 2, payload.Meta["total"])
}

func TestTestCaseHandlerUpdateWithReEvaluation(t *testing.T) {
	testCases := &stubTestCaseService{change: dto.TestCaseChangeResponse{Changed: true}}
	reEvaluation := &stubReEvaluationService{summary: dto.ReEvaluationSummary{Participations: 3, Updated: 2, Skipped: 1}}
	app := newTestCaseApp(testCases, reEvaluation, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))

	body := `{"test_cases":[{"id":2,"weight":2,"visibility":"ALWAYS"}]}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v2/grading/exercises/5/test-cases?reevaluate=true", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, testCases.updates, 1)
	update := testCases.updates[0].TestCases[0]
	require.Equal(t, uint(2), update.ID)
	require.NotNil(t, update.Weight)
	require.Equal(t, 2.0, *update.Weight)
	require.Nil(t, update.BonusPoints)
	require.Equal(t, 1, reEvaluation.calls)

	var payload struct {
		Data dto.TestCaseConfigurationResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Data.Changed)
	require.NotNil(t, payload.Data.ReEvaluation)
	require.Equal(t, uint(5), payload.Data.ReEvaluation.ExerciseID)
	require.Equal(t, 2, payload.Data.ReEvaluation.Updated)
}

func TestTestCaseHandlerResetWithoutChangeSkipsReEvaluation(t *testing.T) {
	testCases := &stubTestCaseService{change: dto.TestCaseChangeResponse{Changed: false}}
	reEvaluation := &stubReEvaluationService{}
	app := newTestCaseApp(testCases, reEvaluation, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v2/grading/exercises/5/test-cases/reset?reevaluate=true", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, testCases.resets)
	require.Zero(t, reEvaluation.calls)
}

func TestTestCaseHandlerUpdateErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "foreign test case", err: service.ErrInvalidTestCaseUpdate, status: fiber.StatusBadRequest},
		{name: "unknown exercise", err: service.ErrExerciseNotFound, status: fiber.StatusNotFound},
		{name: "lock timeout", err: service.ErrLockTimeout, status: fiber.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestCaseApp(&stubTestCaseService{err: tc.err}, &stubReEvaluationService{}, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))
			req := httptest.NewRequest(http.MethodPatch, "/api/v2/grading/exercises/5/test-cases", strings.NewReader(`{"test_cases":[{"id":99}]}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}

	app := newTestCaseApp(&stubTestCaseService{}, &stubReEvaluationService{}, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))
	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/api/v2/grading/exercises/0/test-cases", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTestCaseHandlerReEvaluate(t *testing.T) {
	reEvaluation := &stubReEvaluationService{summary: dto.ReEvaluationSummary{Participations: 4, Updated: 4}}
	app := newTestCaseApp(&stubTestCaseService{}, reEvaluation, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v2/grading/exercises/5/re-evaluate", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, reEvaluation.calls)

	missing := newTestCaseApp(&stubTestCaseService{}, &stubReEvaluationService{err: service.ErrExerciseNotFound}, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))
	resp, err = missing.Test(httptest.NewRequest(http.MethodPost, "/api/v2/grading/exercises/5/re-evaluate", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTestCaseStreamRequiresUpgrade(t *testing.T) {
	app := newTestCaseApp(&stubTestCaseService{}, &stubReEvaluationService{}, service.NewTestCaseEventBroker(nil, "", zerolog.Nop()))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/grading/exercises/5/test-cases/ws", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestTestCaseStreamPushesSnapshotAndChanges(t *testing.T) {
	events := service.NewTestCaseEventBroker(nil, "", zerolog.Nop())
	app := newTestCaseApp(&stubTestCaseService{testCases: registryFixture()}, &stubReEvaluationService{}, events)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v2/grading/exercises/5/test-cases/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"stream-test"}})
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var snapshot dto.TestCaseEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, "snapshot", snapshot.Trigger)
	require.Equal(t, uint(5), snapshot.ExerciseID)
	require.Len(t, snapshot.TestCases, 2)

	events.Publish(t.Context(), dto.TestCaseEvent{ExerciseID: 6, Trigger: "update"})
	events.Publish(t.Context(), dto.TestCaseEvent{
		ExerciseID: 5,
		Trigger:    "build",
		TestCases:  []dto.TestCaseResponse{{ID: 3, ExerciseID: 5, TestName: "testSplit", Active: true}},
	})

	var change dto.TestCaseEvent
	require.NoError(t, conn.ReadJSON(&change))
	require.Equal(t, "build", change.Trigger)
	require.Equal(t, uint(5), change.ExerciseID)
	require.Equal(t, "testSplit", change.TestCases[0].TestName)
}
