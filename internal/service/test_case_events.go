package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// TestCaseEventBroker streams registry changes to live subscribers of an exercise
// and relays them between nodes over NATS.
type TestCaseEventBroker interface {
	Publish(ctx context.Context, event dto.TestCaseEvent)
	Subscribe(exerciseID uint) (<-chan dto.TestCaseEvent, func())
	Start(ctx context.Context)
}

type testCaseEventBroker struct {
	nats    *nats.Conn
	subject string
	hub     *hub[uint, dto.TestCaseEvent]
	logger  zerolog.Logger
	nodeID  string
}

type testCaseEnvelope struct {
	Source string            `json:"source"`
	Event  dto.TestCaseEvent `json:"event"`
}

// NewTestCaseEventBroker constructs the broker. NATS is optional.
func NewTestCaseEventBroker(natsConn *nats.Conn, channelBase string, logger zerolog.Logger) TestCaseEventBroker {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".test_cases"
	}

	return &testCaseEventBroker{
		nats:    natsConn,
		subject: subject,
		hub:     newHub[uint, dto.TestCaseEvent](),
		logger:  logger.With().Str("component", "test_case_events").Logger(),
		nodeID:  uuid.NewString(),
	}
}

func (b *testCaseEventBroker) Publish(ctx context.Context, event dto.TestCaseEvent) {
	if event.ChangedAt.IsZero() {
		event.ChangedAt = time.Now().UTC()
	}
	b.hub.broadcast(event.ExerciseID, event)

	if b.nats == nil || b.subject == "" {
		return
	}
	payload, err := json.Marshal(testCaseEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to encode test case event")
		return
	}
	if err := b.nats.Publish(b.subject, payload); err != nil {
		b.logger.Warn().Err(err).Uint("exercise_id", event.ExerciseID).Msg("failed to relay test case event")
	}
}

func (b *testCaseEventBroker) Subscribe(exerciseID uint) (<-chan dto.TestCaseEvent, func()) {
	channel := b.hub.subscribe(exerciseID)
	observability.StreamClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.hub.unsubscribe(exerciseID, channel)
			observability.StreamClientsActive().Dec()
		})
	}
	return channel, cleanup
}

func (b *testCaseEventBroker) Start(ctx context.Context) {
	if b.nats == nil || b.subject == "" {
		return
	}

	sub, err := b.nats.Subscribe(b.subject, func(msg *nats.Msg) {
		var envelope testCaseEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			b.logger.Warn().Err(err).Msg("invalid test case event payload")
			return
		}
		if envelope.Source == b.nodeID {
			return
		}
		b.hub.broadcast(envelope.Event.ExerciseID, envelope.Event)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to test case events")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain test case event subscription")
		}
	}()
}
