package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

const (
	// NotificationTypeDuplicateTestCases marks warnings about colliding test names.
	NotificationTypeDuplicateTestCases = "duplicate_test_cases"
	maxNotificationMessageLength       = 2000
)

// ExerciseStaffRecipient is the notification channel of the editors and instructors of an exercise.
func ExerciseStaffRecipient(exerciseID uint) string {
	return fmt.Sprintf("exercise:%d:staff", exerciseID)
}

// NotificationService persists notifications and streams them to live subscribers.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, recipient string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, recipient string) (dto.NotificationResponse, error)
	Subscribe(recipient string) (<-chan dto.NotificationResponse, func())
	NotifyDuplicateTestCases(ctx context.Context, exercise models.ProgrammingExercise, names []string) error
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	hub         *hub[string, dto.NotificationResponse]
	nodeID      string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs a notification service. Redis and NATS are
// optional fan-out channels to other nodes.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:        repo,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-grader/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		hub:         newHub[string, dto.NotificationResponse](),
		nodeID:      uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, errors.New("notification message empty after sanitization")
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.recipient", payload.Recipient),
		attribute.String("notification.type", payload.Type),
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Notification{
		Recipient:  payload.Recipient,
		ExerciseID: payload.ExerciseID,
		Type:       payload.Type,
		Message:    cleanMessage,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.broadcast(response)
	if err := s.publish(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification to broker")
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

// NotifyDuplicateTestCases warns the staff of an exercise once per call.
func (s *notificationService) NotifyDuplicateTestCases(ctx context.Context, exercise models.ProgrammingExercise, names []string) error {
	if len(names) == 0 {
		return nil
	}

	message := fmt.Sprintf(
		"Exercise %s (%d) reported test cases with the same name: %s. Results with duplicate test names score zero points until the names are unique.",
		exercise.Title, exercise.ID, strings.Join(names, ", "),
	)
	if runes := []rune(message); len(runes) > maxNotificationMessageLength {
		message = string(runes[:maxNotificationMessageLength])
	}

	exerciseID := exercise.ID
	_, err := s.Publish(ctx, dto.NotificationCreateRequest{
		Recipient:  ExerciseStaffRecipient(exercise.ID),
		ExerciseID: &exerciseID,
		Type:       NotificationTypeDuplicateTestCases,
		Message:    message,
	})
	return err
}

func (s *notificationService) List(ctx context.Context, recipient string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, errors.New("recipient is required")
	}

	notifications, err := s.repo.ListByRecipient(ctx, recipient, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, recipient string) (dto.NotificationResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.String("notification.recipient", recipient),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(attrs...))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, recipient)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) Subscribe(recipient string) (<-chan dto.NotificationResponse, func()) {
	channel := s.hub.subscribe(recipient)
	observability.StreamClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.hub.unsubscribe(recipient, channel)
			observability.StreamClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *notificationService) broadcast(notification dto.NotificationResponse) {
	s.hub.broadcast(notification.Recipient, notification)
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	// every node needs every event, so this is a plain subscription rather than a queue group
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	notification := event.Notification
	if notification.Type == "" {
		notification.Type = "generic"
	}

	observability.NotificationsPublishedTotal().WithLabelValues(notification.Type).Inc()
	s.broadcast(notification)
}
