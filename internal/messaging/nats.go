package messaging

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
)

// NATSConsumer grades build reports published on a NATS subject. Nodes share
// the work through a queue group.
type NATSConsumer struct {
	conn      *nats.Conn
	subject   string
	queue     string
	workers   int
	processor BuildResultProcessor
	logger    zerolog.Logger

	messages chan *nats.Msg
	sub      *nats.Subscription
	wg       sync.WaitGroup
}

// NewNATSConsumer constructs a consumer; Start begins receiving.
func NewNATSConsumer(conn *nats.Conn, subject, queue string, workers int, processor BuildResultProcessor, logger zerolog.Logger) *NATSConsumer {
	if workers <= 0 {
		workers = 1
	}
	return &NATSConsumer{
		conn:      conn,
		subject:   subject,
		queue:     queue,
		workers:   workers,
		processor: processor,
		logger:    logger.With().Str("component", "nats_build_results").Logger(),
		messages:  make(chan *nats.Msg, workers*4),
	}
}

// Start subscribes and runs the workers until ctx is done.
func (c *NATSConsumer) Start(ctx context.Context) error {
	sub, err := c.conn.ChanQueueSubscribe(c.subject, c.queue, c.messages)
	if err != nil {
		return err
	}
	c.sub = sub

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to drain build result subscription")
		}
	}()

	c.logger.Info().Str("subject", c.subject).Int("workers", c.workers).Msg("build result consumer started")
	return nil
}

// Wait blocks until every worker returned.
func (c *NATSConsumer) Wait() {
	c.wg.Wait()
}

func (c *NATSConsumer) worker(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.messages:
			c.handle(ctx, msg)
		}
	}
}

func (c *NATSConsumer) handle(ctx context.Context, msg *nats.Msg) {
	ctx = middleware.ContextWithCorrelation(ctx, middleware.ResolveCorrelationID(msg.Header.Get(middleware.CorrelationHeader)))
	request, err := decodeBuildResult(msg.Data)
	if err != nil {
		c.logger.Error().Err(err).Str("subject", msg.Subject).Msg("invalid build result message")
		c.respond(msg, encodeReply(dto.BuildResultResponse{}, err))
		return
	}

	response, err := c.processor.Process(ctx, service.SourceNATS, request)
	if err != nil {
		c.logger.Error().Err(err).
			Uint("participation_id", request.ParticipationID).
			Bool("permanent", isPermanent(err)).
			Msg("failed to grade build result")
	}
	c.respond(msg, encodeReply(response, err))
}

func (c *NATSConsumer) respond(msg *nats.Msg, body []byte) {
	if msg.Reply == "" || c.conn == nil {
		return
	}
	if err := c.conn.Publish(msg.Reply, body); err != nil {
		c.logger.Warn().Err(err).Msg("failed to reply to build result request")
	}
}
