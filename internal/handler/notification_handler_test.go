package handler_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
)

func newNotificationApp(svc *stubNotificationService, userID uint, role string) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	group := app.Group("/api/v2/grading/notifications", withUser(userID, role))
	handler.NewNotificationHandler(svc, zerolog.Nop(), 2*time.Second).Register(group)
	return app
}

func TestNotificationHandlerListDefaultsToOwnChannel(t *testing.T) {
	svc := &stubNotificationService{}
	app := newNotificationApp(svc, 42, middleware.RoleStudent)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/grading/notifications?limit=5", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "42", svc.lastRecipient())

	var payload struct {
		Data []dto.NotificationResponse `json:"data"`
		Meta map[string]int             `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, 5, payload.Meta["limit"])
}

func TestNotificationHandlerStaffChannelAccess(t *testing.T) {
	path := "/api/v2/grading/notifications?recipient=exercise:5:staff"

	student := &stubNotificationService{}
	resp, err := newNotificationApp(student, 42, middleware.RoleStudent).Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Empty(t, student.lastRecipient())

	instructor := &stubNotificationService{}
	resp, err = newNotificationApp(instructor, 3, middleware.RoleInstructor).Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "exercise:5:staff", instructor.lastRecipient())
}

func TestNotificationHandlerPublishRequiresStaff(t *testing.T) {
	body := `{"recipient":"42","type":"generic","message":"hello"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v2/grading/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := newNotificationApp(&stubNotificationService{}, 42, middleware.RoleStudent).Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	svc := &stubNotificationService{}
	req = httptest.NewRequest(http.MethodPost, "/api/v2/grading/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = newNotificationApp(svc, 1, middleware.RoleEditor).Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "42", svc.lastRecipient())
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	svc := &stubNotificationService{}
	app := newNotificationApp(svc, 42, middleware.RoleStudent)

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/api/v2/grading/notifications/9/read", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "42", svc.lastRecipient())

	resp, err = app.Test(httptest.NewRequest(http.MethodPatch, "/api/v2/grading/notifications/nine/read", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNotificationHandlerStreamWritesEvents(t *testing.T) {
	svc := &stubNotificationService{stream: []dto.NotificationResponse{
		{ID: 99, Recipient: "exercise:5:staff", Type: "duplicate_test_cases", Message: "duplicate test names: testSort"},
	}}
	app := newNotificationApp(svc, 3, middleware.RoleInstructor)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/api/v2/grading/notifications/stream?recipient=exercise:5:staff")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.False(t, time.Now().After(deadline), "sse response timed out")
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var event dto.NotificationResponse
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &event))
		require.Equal(t, uint(99), event.ID)
		require.Equal(t, "duplicate_test_cases", event.Type)
		break
	}
	require.Equal(t, "exercise:5:staff", svc.lastRecipient())
}
