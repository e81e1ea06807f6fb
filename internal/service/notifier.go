package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// События, отправляемые после фиксации изменения
const (
	EventBookingCreated       = "booking.created"
	EventBookingConfirmed     = "booking.confirmed"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingCompleted     = "booking.completed"
	EventBookingNoShow        = "booking.no_show"
	EventPaymentStatusChanged = "booking.payment_status_changed"
	EventGroupStatusChanged   = "group.status_changed"
	EventGroupReminder        = "group.reminder"
	EventGroupCancelled       = "group.cancelled"
	EventSessionStatusChanged = "session.status_changed"
	EventBreakoutAssigned     = "breakout.assigned"
	EventBreakoutClosed       = "breakout.closed"
)

// Notifier доставляет события пользователям.
// Ошибка доставки не отменяет зафиксированный переход.
type Notifier interface {
	Notify(ctx context.Context, event string, recipients []uuid.UUID, payload map[string]any) error
}

// postCommit отправляет событие, ошибку только логирует
type postCommit struct {
	notifier Notifier
	logger   *zap.Logger
}

func (p postCommit) notify(ctx context.Context, event string, recipients []uuid.UUID, payload map[string]any) {
	if p.notifier == nil || len(recipients) == 0 {
		return
	}
	if err := p.notifier.Notify(ctx, event, recipients, payload); err != nil {
		p.logger.Warn("Failed to send notification",
			zap.String("event", event),
			zap.Int("recipients", len(recipients)),
			zap.Error(err),
		)
	}
}

type clock func() time.Time
