// Package notify доставляет события движка наружу.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeKind = "topic"

// Envelope JSON-тело публикуемого события
type Envelope struct {
	Event      string         `json:"event"`
	Recipients []uuid.UUID    `json:"recipients"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// publisher часть *amqp.Channel, нужная уведомителю
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier публикует события в topic exchange, routing key = имя события.
// Каналы доставки подписываются на exchange сами.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

func NewAMQPNotifier(url, exchange string, logger *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("Notifier connected to RabbitMQ", zap.String("exchange", exchange))

	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange, logger: logger, now: time.Now}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, event string, recipients []uuid.UUID, payload map[string]any) error {
	body, err := json.Marshal(Envelope{
		Event:      event,
		Recipients: recipients,
		Payload:    payload,
		OccurredAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}

	err = n.ch.PublishWithContext(ctx, n.exchange, event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    n.now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event, err)
	}

	n.logger.Debug("Event published",
		zap.String("event", event),
		zap.Int("recipients", len(recipients)),
	)
	return nil
}

func (n *AMQPNotifier) Close() error {
	if c, ok := n.ch.(*amqp.Channel); ok && c != nil {
		_ = c.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
