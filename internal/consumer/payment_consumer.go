// Package consumer применяет события платёжного сервиса к бронированиям.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const paymentRoutingKey = "payment.*"

// PaymentUpdater часть сервиса бронирований, нужная потребителю
type PaymentUpdater interface {
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) (*model.Booking, error)
}

// PaymentEvent тело сообщения платёжного сервиса
type PaymentEvent struct {
	Event string `json:"event"`
	Data  struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
		PaymentID string `json:"payment_id,omitempty"`
	} `json:"data"`
}

type outcome int

const (
	ack     outcome = iota // обработано или ошибка окончательная
	requeue                // временная ошибка, повторить
	reject                 // битое сообщение, не повторять
)

type PaymentConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	updater PaymentUpdater
	logger  *zap.Logger
}

func NewPaymentConsumer(url, exchange, queue string, updater PaymentUpdater, logger *zap.Logger) (*PaymentConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	if err := ch.QueueBind(q.Name, paymentRoutingKey, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue bind: %w", err)
	}

	return &PaymentConsumer{conn: conn, channel: ch, queue: q.Name, updater: updater, logger: logger}, nil
}

// Run читает сообщения, пока ctx не отменён или брокер не закрыл канал
func (c *PaymentConsumer) Run(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // ack вручную после обновления бронирования
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	c.logger.Info("Payment consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Payment consumer stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("payment deliveries channel closed")
			}
			c.settle(msg, c.handle(ctx, msg.Body))
		}
	}
}

func (c *PaymentConsumer) settle(msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case ack:
		err = msg.Ack(false)
	case requeue:
		err = msg.Nack(false, true)
	case reject:
		err = msg.Nack(false, false)
	}
	if err != nil {
		c.logger.Error("Failed to settle delivery", zap.Uint64("tag", msg.DeliveryTag), zap.Error(err))
	}
}

func (c *PaymentConsumer) handle(ctx context.Context, body []byte) outcome {
	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Warn("Malformed payment event", zap.Error(err))
		return reject
	}

	bookingID, err := uuid.Parse(event.Data.BookingID)
	if err != nil {
		c.logger.Warn("Payment event with invalid booking id",
			zap.String("event", event.Event),
			zap.String("booking_id", event.Data.BookingID),
		)
		return reject
	}

	status := model.PaymentStatus(event.Data.Status)
	if !status.Valid() {
		c.logger.Warn("Payment event with unknown status",
			zap.String("event", event.Event),
			zap.String("status", event.Data.Status),
		)
		return reject
	}

	if _, err := c.updater.UpdatePaymentStatus(ctx, bookingID, status); err != nil {
		if isBusinessError(err) {
			c.logger.Warn("Payment event rejected",
				zap.Stringer("booking_id", bookingID),
				zap.String("status", string(status)),
				zap.Error(err),
			)
			return ack
		}
		c.logger.Error("Failed to apply payment event",
			zap.Stringer("booking_id", bookingID),
			zap.Error(err),
		)
		return requeue
	}

	c.logger.Info("Payment event applied",
		zap.String("event", event.Event),
		zap.Stringer("booking_id", bookingID),
		zap.String("status", string(status)),
		zap.String("payment_id", event.Data.PaymentID),
	)
	return ack
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		model.ErrNotFound,
		model.ErrInvalidStateTransition,
		model.ErrInvalidArgument,
		model.ErrPermissionDenied,
		model.ErrCapacityExceeded,
		model.ErrSlotConflict,
		model.ErrFeatureDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (c *PaymentConsumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
