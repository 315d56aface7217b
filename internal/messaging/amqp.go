package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
)

// AMQPConfig configures the RabbitMQ build result consumer.
type AMQPConfig struct {
	URL          string
	Queue        string
	WorkersCount int
	// ReconnectDelay is the pause between reconnection attempts.
	ReconnectDelay time.Duration
}

// acknowledger is the part of amqp.Delivery the workers need.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// AMQPConsumer grades build reports taken from a RabbitMQ queue. Deliveries are
// acknowledged manually once graded; transient failures are redelivered once.
type AMQPConsumer struct {
	cfg       AMQPConfig
	processor BuildResultProcessor
	logger    zerolog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	consumer *amqp.Channel
	producer *amqp.Channel
	closed   bool
	wg       sync.WaitGroup
}

// NewAMQPConsumer constructs the consumer; Start connects.
func NewAMQPConsumer(cfg AMQPConfig, processor BuildResultProcessor, logger zerolog.Logger) *AMQPConsumer {
	if cfg.WorkersCount <= 0 {
		cfg.WorkersCount = 1
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 15 * time.Second
	}
	return &AMQPConsumer{
		cfg:       cfg,
		processor: processor,
		logger:    logger.With().Str("component", "amqp_build_results").Logger(),
	}
}

// Start connects, declares the queue and starts the workers.
func (c *AMQPConsumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "failed to connect to rabbitmq")
	}

	deliveries, err := c.startConsumer(conn)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to start consumer")
	}

	producer, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to start producer")
	}

	c.mu.Lock()
	c.conn = conn
	c.producer = producer
	c.mu.Unlock()

	c.watch(ctx, conn)

	for i := 0; i < c.cfg.WorkersCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, deliveries)
	}

	c.logger.Info().Str("queue", c.cfg.Queue).Int("workers", c.cfg.WorkersCount).Msg("build result consumer started")
	return nil
}

func (c *AMQPConsumer) startConsumer(conn *amqp.Connection) (<-chan amqp.Delivery, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := channel.Qos(c.cfg.WorkersCount, 0, false); err != nil {
		return nil, errors.Wrap(err, "failed to set prefetch")
	}
	queue, err := channel.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to declare queue %s", c.cfg.Queue)
	}
	deliveries, err := channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.consumer = channel
	c.mu.Unlock()
	return deliveries, nil
}

// watch restarts the consumer when the broker drops the connection.
func (c *AMQPConsumer) watch(ctx context.Context, conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case amqpErr, ok := <-closed:
			if !ok || c.isClosed() {
				return
			}
			c.logger.Warn().Str("reason", amqpErr.Reason).Msg("rabbitmq connection lost, reconnecting")
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}
			err := c.Start(ctx)
			if err == nil {
				return
			}
			c.logger.Error().Err(err).Msg("rabbitmq reconnect failed")
		}
	}()
}

// Close stops consuming and waits for in-flight deliveries.
func (c *AMQPConsumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

func (c *AMQPConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *AMQPConsumer) worker(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()

	for delivery := range deliveries {
		deliveryCtx := middleware.ContextWithCorrelation(ctx, middleware.ResolveCorrelationID(delivery.CorrelationId, delivery.MessageId))
		body := c.handle(deliveryCtx, delivery.Body, delivery.Redelivered, delivery)
		if delivery.ReplyTo != "" {
			c.reply(ctx, delivery.ReplyTo, delivery.CorrelationId, body)
		}
	}
}

// handle grades one message and settles it. It returns the reply body.
func (c *AMQPConsumer) handle(ctx context.Context, body []byte, redelivered bool, ack acknowledger) []byte {
	request, err := decodeBuildResult(body)
	if err != nil {
		c.logger.Error().Err(err).Msg("invalid build result message")
		c.settle(ack, err, redelivered)
		return encodeReply(dto.BuildResultResponse{}, err)
	}

	response, err := c.processor.Process(ctx, service.SourceAMQP, request)
	if err != nil {
		c.logger.Error().Err(err).
			Uint("participation_id", request.ParticipationID).
			Bool("redelivered", redelivered).
			Msg("failed to grade build result")
	}
	c.settle(ack, err, redelivered)
	return encodeReply(response, err)
}

func (c *AMQPConsumer) settle(ack acknowledger, err error, redelivered bool) {
	var settleErr error
	switch {
	case err == nil:
		settleErr = ack.Ack(false)
	case isPermanent(err) || redelivered:
		settleErr = ack.Nack(false, false)
	default:
		settleErr = ack.Nack(false, true)
	}
	if settleErr != nil {
		c.logger.Warn().Err(settleErr).Msg("failed to settle delivery")
	}
}

func (c *AMQPConsumer) reply(ctx context.Context, replyTo, correlationID string, body []byte) {
	c.mu.Lock()
	producer := c.producer
	closed := c.closed
	c.mu.Unlock()
	if closed || producer == nil {
		return
	}

	err := producer.PublishWithContext(ctx, "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
	if err != nil {
		c.logger.Error().Err(errors.Wrap(err, "failed to send reply")).Str("reply_to", replyTo).Msg("reply dropped")
	}
}
