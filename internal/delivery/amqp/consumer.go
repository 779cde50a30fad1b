package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/judge"
)

const (
	// QueueName is the queue judge requests are read from.
	QueueName = "judge_requests"

	deadLetterExchange   = "dlx.judge_requests"
	deadLetterRoutingKey = "judge_requests.dlq"

	// Reconnection parameters
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

// Dispatcher accepts tickets for judging.
type Dispatcher interface {
	Dispatch(ctx context.Context, ref domain.TicketRef) (*judge.Task, error)
}

type verdict int

const (
	verdictAck verdict = iota
	verdictReject
	verdictRequeue
)

// Consumer reads judge requests from RabbitMQ and hands them to the dispatcher.
// A message is acknowledged as soon as the dispatcher accepted it.
type Consumer struct {
	url        string
	conn       *amqplib.Connection
	channel    *amqplib.Channel
	dispatcher Dispatcher
	logger     *zap.Logger
	tag        string

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a new RabbitMQ consumer and connects it.
func NewConsumer(url string, dispatcher Dispatcher, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:        url,
		dispatcher: dispatcher,
		logger:     logger,
		tag:        "alsit-judge-" + uuid.NewString(),
		closeCh:    make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes the AMQP connection and channel with prefetch=1.
func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	_, err = ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqplib.Table{
			"x-queue-type":              "quorum",
			"x-dead-letter-exchange":    deadLetterExchange,
			"x-dead-letter-routing-key": deadLetterRoutingKey,
		},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start begins consuming messages. It blocks until the context is cancelled.
// On connection loss it reconnects with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting...", zap.Error(err))

		for attempt := 0; ; attempt++ {
			delay := time.Duration(math.Min(
				float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
				float64(maxReconnectDelay),
			))
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)

			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

// consume runs one consume session until the delivery channel closes or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		QueueName,
		c.tag,
		false, // auto-ack disabled (manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started", zap.String("queue", QueueName), zap.String("consumer_tag", c.tag))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			var ackErr error
			switch c.handle(ctx, delivery.Body) {
			case verdictAck:
				ackErr = delivery.Ack(false)
			case verdictRequeue:
				ackErr = delivery.Nack(false, true)
			default:
				ackErr = delivery.Nack(false, false) // reject → DLQ
			}
			if ackErr != nil {
				c.logger.Error("Failed to settle delivery",
					zap.Uint64("delivery_tag", delivery.DeliveryTag),
					zap.Error(ackErr),
				)
			}
		}
	}
}

// judgeRequest is the message body. Language stays a string so that a
// missing field is told apart from the zero Language.
type judgeRequest struct {
	TicketID int64  `json:"ticket_id"`
	Language string `json:"language"`
}

// handle decodes one request body and dispatches it.
func (c *Consumer) handle(ctx context.Context, body []byte) verdict {
	var req judgeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.logger.Error("Failed to unmarshal judge request",
			zap.Error(err),
			zap.String("body", string(body)),
		)
		return verdictReject
	}
	if req.TicketID <= 0 {
		c.logger.Error("Judge request without ticket id", zap.String("body", string(body)))
		return verdictReject
	}
	lang, err := domain.ParseLanguage(req.Language)
	if err != nil {
		c.logger.Error("Judge request without a known language",
			zap.Int64("ticket_id", req.TicketID),
			zap.String("language", req.Language),
		)
		return verdictReject
	}
	ref := domain.TicketRef{ID: req.TicketID, Language: lang}

	c.logger.Debug("Received judge request",
		zap.Int64("ticket_id", ref.ID),
		zap.String("language", ref.Language.String()),
	)

	_, err = c.dispatcher.Dispatch(ctx, ref)
	switch {
	case err == nil:
		return verdictAck
	case errors.Is(err, domain.ErrShuttingDown):
		return verdictRequeue
	default:
		c.logger.Error("Judge request rejected",
			zap.Int64("ticket_id", ref.ID),
			zap.Error(err),
		)
		return verdictReject
	}
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
