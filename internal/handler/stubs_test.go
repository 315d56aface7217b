package handler_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
)

type stubBuildResultService struct {
	response dto.BuildResultResponse
	err      error
	calls    []dto.BuildResultRequest
	sources  []string
}

func (s *stubBuildResultService) Process(_ context.Context, source string, payload dto.BuildResultRequest) (dto.BuildResultResponse, error) {
	s.calls = append(s.calls, payload)
	s.sources = append(s.sources, source)
	return s.response, s.err
}

type stubResultService struct {
	result models.Result
	err    error
}

func (s *stubResultService) ProcessNewAutomaticResult(_ context.Context, _ models.Participation, _ models.ProgrammingExercise, result *models.Result) (models.Result, error) {
	return *result, nil
}

func (s *stubResultService) Latest(context.Context, uint) (models.Result, error) {
	return s.result, s.err
}

type stubTestCaseService struct {
	mu        sync.Mutex
	testCases []models.TestCase
	change    dto.TestCaseChangeResponse
	err       error
	updates   []dto.TestCaseUpdateBatch
	resets    int
}

func (s *stubTestCaseService) Extract(context.Context, models.ProgrammingExercise, []models.Feedback) (bool, error) {
	return false, nil
}

func (s *stubTestCaseService) List(context.Context, uint) ([]models.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testCases, nil
}

func (s *stubTestCaseService) Active(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	return s.List(ctx, exerciseID)
}

func (s *stubTestCaseService) Update(_ context.Context, _ uint, payload dto.TestCaseUpdateBatch) (dto.TestCaseChangeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, payload)
	return s.change, s.err
}

func (s *stubTestCaseService) Reset(context.Context, uint) (dto.TestCaseChangeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return s.change, s.err
}

type stubReEvaluationService struct {
	summary dto.ReEvaluationSummary
	err     error
	calls   int
}

func (s *stubReEvaluationService) ReEvaluate(_ context.Context, exerciseID uint) (dto.ReEvaluationSummary, error) {
	s.calls++
	summary := s.summary
	summary.ExerciseID = exerciseID
	return summary, s.err
}

type stubNotificationService struct {
	mu         sync.Mutex
	recipients []string
	stream     []dto.NotificationResponse
}

func (s *stubNotificationService) record(recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = append(s.recipients, recipient)
}

func (s *stubNotificationService) lastRecipient() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recipients) == 0 {
		return ""
	}
	return s.recipients[len(s.recipients)-1]
}

func (s *stubNotificationService) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	s.record(payload.Recipient)
	return dto.NotificationResponse{ID: 1, Recipient: payload.Recipient, Type: payload.Type, Message: payload.Message}, nil
}

func (s *stubNotificationService) List(_ context.Context, recipient string, _, _ int) ([]dto.NotificationResponse, error) {
	s.record(recipient)
	return []dto.NotificationResponse{{ID: 1, Recipient: recipient, Type: "generic", Message: "hello", CreatedAt: time.Now(), UpdatedAt: time.Now()}}, nil
}

func (s *stubNotificationService) MarkRead(_ context.Context, id uint, recipient string) (dto.NotificationResponse, error) {
	s.record(recipient)
	return dto.NotificationResponse{ID: id, Recipient: recipient, Read: true}, nil
}

func (s *stubNotificationService) Subscribe(recipient string) (<-chan dto.NotificationResponse, func()) {
	s.record(recipient)
	ch := make(chan dto.NotificationResponse, len(s.stream))
	for _, item := range s.stream {
		ch <- item
	}
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func (s *stubNotificationService) NotifyDuplicateTestCases(context.Context, models.ProgrammingExercise, []string) error {
	return nil
}

func (s *stubNotificationService) Start(context.Context) {}

func withUser(userID uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	}
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
