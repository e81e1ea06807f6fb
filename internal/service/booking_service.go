package service

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/Freeeeeet/booking_engine/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService struct {
	store  repository.Store
	policy PaymentPolicy
	events postCommit
	logger *zap.Logger
	now    clock
}

func NewBookingService(store repository.Store, policy PaymentPolicy, notifier Notifier, logger *zap.Logger) *BookingService {
	return &BookingService{
		store:  store,
		policy: policy,
		events: postCommit{notifier: notifier, logger: logger},
		logger: logger,
		now:    time.Now,
	}
}

type CreateResourceParams struct {
	Kind             model.ResourceKind
	ProviderID       uuid.UUID
	Name             string
	Capacity         int
	RequiresApproval bool
	Timezone         string
}

// CreateResource регистрирует класс или услугу, под которые резервируется ёмкость
func (s *BookingService) CreateResource(ctx context.Context, p CreateResourceParams) (*model.Resource, error) {
	if !p.Kind.Valid() {
		return nil, model.InvalidArgument("unknown resource kind %q", p.Kind)
	}
	if p.Capacity < 1 {
		return nil, model.InvalidArgument("capacity must be positive, got %d", p.Capacity)
	}
	if p.ProviderID == uuid.Nil {
		return nil, model.InvalidArgument("provider is required")
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return nil, model.InvalidArgument("unknown timezone %q", p.Timezone)
		}
	}

	resource := &model.Resource{
		ID:               uuid.New(),
		Kind:             p.Kind,
		ProviderID:       p.ProviderID,
		Name:             strings.TrimSpace(p.Name),
		Capacity:         p.Capacity,
		RequiresApproval: p.RequiresApproval,
		Timezone:         p.Timezone,
		CreatedAt:        s.now(),
	}

	if err := s.store.Resources().Create(ctx, resource); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	s.logger.Info("Resource created",
		zap.Stringer("resource_id", resource.ID),
		zap.String("kind", string(resource.Kind)),
		zap.Stringer("provider_id", resource.ProviderID),
		zap.Int("capacity", resource.Capacity),
		zap.Bool("requires_approval", resource.RequiresApproval),
	)

	return resource, nil
}

// GetResource возвращает ресурс по ID
func (s *BookingService) GetResource(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	return s.store.Resources().GetByID(ctx, id)
}

type CreateBookingParams struct {
	ResourceID       uuid.UUID
	UserID           uuid.UUID
	Window           model.TimeWindow
	ParticipantCount int
	Amount           int64
	Currency         string
	Notes            string
	Metadata         map[string]any
}

func (p CreateBookingParams) validate() error {
	if p.UserID == uuid.Nil {
		return model.InvalidArgument("user is required")
	}
	if !p.Window.Start.Before(p.Window.End) {
		return fmt.Errorf("%w: %w", model.ErrInvalidArgument, model.ErrInvalidWindow)
	}
	if p.ParticipantCount < 1 {
		return model.InvalidArgument("participant count must be positive, got %d", p.ParticipantCount)
	}
	if p.Amount < 0 {
		return model.InvalidArgument("amount must not be negative")
	}
	if p.Amount > 0 && len(p.Currency) != 3 {
		return model.InvalidArgument("currency must be a three-letter code, got %q", p.Currency)
	}
	return nil
}

// CreateBooking резервирует ёмкость ресурса и создаёт бронирование.
// Пересечения проверяются по всем ресурсам провайдера под блокировкой провайдера,
// ёмкость - под блокировкой ресурса.
func (s *BookingService) CreateBooking(ctx context.Context, p CreateBookingParams) (*model.Booking, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	// Провайдер ресурса не меняется, его можно прочитать до блокировки
	owner, err := s.store.Resources().GetByID(ctx, p.ResourceID)
	if err != nil {
		return nil, err
	}

	var (
		booking  *model.Booking
		resource *model.Resource
	)
	err = s.store.Atomically(ctx, repository.ProviderKey(owner.ProviderID), func(ctx context.Context, tx repository.Store) error {
		return tx.Atomically(ctx, repository.ResourceKey(p.ResourceID), func(ctx context.Context, tx repository.Store) error {
			var err error
			resource, err = tx.Resources().GetByID(ctx, p.ResourceID)
			if err != nil {
				return err
			}

			now := s.now()
			// Окно должно быть в будущем
			if !p.Window.Start.After(now) {
				return model.InvalidArgument("booking window starts in the past")
			}

			// Проверяем ёмкость
			if p.ParticipantCount > resource.Remaining() {
				return &model.CapacityExceededError{
					Entity:    "resource",
					ID:        resource.ID.String(),
					Capacity:  resource.Capacity,
					Reserved:  resource.Reserved,
					Requested: p.ParticipantCount,
				}
			}

			// Проверяем пересечения с бронированиями провайдера
			occupying, err := tx.Bookings().ListOccupyingByProvider(ctx, resource.ProviderID, p.Window.Start, p.Window.End)
			if err != nil {
				return fmt.Errorf("list occupying bookings: %w", err)
			}
			if other, ok := schedule.FirstConflict(p.Window, occupying); ok {
				return &model.SlotConflictError{
					ResourceID:    resource.ID.String(),
					Window:        p.Window,
					ConflictsWith: other.ID.String(),
				}
			}

			// Статус зависит от настроек ресурса и политики оплаты
			status := model.BookingStatusConfirmed
			if resource.RequiresApproval || s.policy.RequiresPayment(resource.Kind) {
				status = model.BookingStatusPending
			}

			booking = &model.Booking{
				ID:               uuid.New(),
				UserID:           p.UserID,
				Resource:         resource.Ref(),
				Window:           p.Window,
				ParticipantCount: p.ParticipantCount,
				Amount:           p.Amount,
				Currency:         strings.ToUpper(p.Currency),
				Status:           status,
				PaymentStatus:    model.PaymentStatusPending,
				Notes:            p.Notes,
				Metadata:         maps.Clone(p.Metadata),
				CreatedAt:        now,
				UpdatedAt:        now,
			}

			if err := tx.Bookings().Create(ctx, booking); err != nil {
				return fmt.Errorf("create booking: %w", err)
			}
			if err := tx.Resources().AdjustReserved(ctx, resource.ID, p.ParticipantCount); err != nil {
				return fmt.Errorf("reserve capacity: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking created",
		zap.Stringer("booking_id", booking.ID),
		zap.Stringer("user_id", booking.UserID),
		zap.Stringer("resource", booking.Resource),
		zap.Time("start", booking.Window.Start),
		zap.Time("end", booking.Window.End),
		zap.Int("participants", booking.ParticipantCount),
		zap.String("status", string(booking.Status)),
	)

	s.events.notify(ctx, EventBookingCreated, []uuid.UUID{booking.UserID, resource.ProviderID}, bookingPayload(booking))

	return booking, nil
}

// inBooking загружает бронирование и выполняет fn под блокировкой его ресурса
// с актуальной копией бронирования и ресурса.
func (s *BookingService) inBooking(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx repository.Store, booking *model.Booking, resource *model.Resource) error) (*model.Booking, *model.Resource, error) {
	current, err := s.store.Bookings().GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var (
		booking  *model.Booking
		resource *model.Resource
	)
	err = s.store.Atomically(ctx, repository.ResourceKey(current.Resource.ID), func(ctx context.Context, tx repository.Store) error {
		var err error
		if booking, err = tx.Bookings().GetByID(ctx, id); err != nil {
			return err
		}
		if resource, err = tx.Resources().GetByID(ctx, booking.Resource.ID); err != nil {
			return err
		}
		return fn(ctx, tx, booking, resource)
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, resource, nil
}

// ConfirmBooking подтверждает ожидающее бронирование
func (s *BookingService) ConfirmBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	booking, resource, err := s.inBooking(ctx, id, func(ctx context.Context, tx repository.Store, booking *model.Booking, resource *model.Resource) error {
		if s.policy.RequiresPayment(resource.Kind) && booking.PaymentStatus != model.PaymentStatusCompleted {
			return &model.InvalidStateTransitionError{
				Entity: "booking",
				From:   string(booking.Status),
				To:     string(model.BookingStatusConfirmed),
				Reason: "payment is " + string(booking.PaymentStatus),
			}
		}
		if err := booking.TransitionTo(model.BookingStatusConfirmed, s.now()); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking confirmed",
		zap.Stringer("booking_id", booking.ID),
		zap.Stringer("resource", booking.Resource),
	)

	s.events.notify(ctx, EventBookingConfirmed, []uuid.UUID{booking.UserID, resource.ProviderID}, bookingPayload(booking))

	return booking, nil
}

// CancelBooking отменяет бронирование и освобождает ёмкость.
// Отменить может владелец брони или провайдер ресурса; повторная отмена ничего не делает.
func (s *BookingService) CancelBooking(ctx context.Context, id, actor uuid.UUID) (*model.Booking, error) {
	alreadyCancelled := false
	booking, resource, err := s.inBooking(ctx, id, func(ctx context.Context, tx repository.Store, booking *model.Booking, resource *model.Resource) error {
		if actor != booking.UserID && actor != resource.ProviderID {
			return &model.PermissionDeniedError{Actor: actor.String(), Action: "cancel booking " + booking.ID.String()}
		}
		if booking.Status == model.BookingStatusCancelled {
			alreadyCancelled = true
			return nil
		}
		if err := booking.TransitionTo(model.BookingStatusCancelled, s.now()); err != nil {
			return err
		}
		cancelledBy := actor
		booking.CancelledBy = &cancelledBy
		return s.release(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}
	if alreadyCancelled {
		return booking, nil
	}

	s.logger.Info("Booking cancelled",
		zap.Stringer("booking_id", booking.ID),
		zap.Stringer("cancelled_by", actor),
		zap.Int("released", booking.ParticipantCount),
	)

	s.events.notify(ctx, EventBookingCancelled, []uuid.UUID{booking.UserID, resource.ProviderID}, bookingPayload(booking))

	return booking, nil
}

// MarkCompleted отмечает прошедшее бронирование как состоявшееся
func (s *BookingService) MarkCompleted(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.finish(ctx, id, model.BookingStatusCompleted, EventBookingCompleted)
}

// MarkNoShow отмечает неявку пользователя
func (s *BookingService) MarkNoShow(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.finish(ctx, id, model.BookingStatusNoShow, EventBookingNoShow)
}

func (s *BookingService) finish(ctx context.Context, id uuid.UUID, next model.BookingStatus, event string) (*model.Booking, error) {
	booking, resource, err := s.inBooking(ctx, id, func(ctx context.Context, tx repository.Store, booking *model.Booking, _ *model.Resource) error {
		now := s.now()
		if booking.Status == model.BookingStatusConfirmed && booking.Window.End.After(now) {
			return &model.InvalidStateTransitionError{
				Entity: "booking",
				From:   string(booking.Status),
				To:     string(next),
				Reason: "booking window has not ended",
			}
		}
		if err := booking.TransitionTo(next, now); err != nil {
			return err
		}
		return s.release(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking finished",
		zap.Stringer("booking_id", booking.ID),
		zap.String("status", string(booking.Status)),
	)

	s.events.notify(ctx, event, []uuid.UUID{booking.UserID, resource.ProviderID}, bookingPayload(booking))

	return booking, nil
}

// release сохраняет бронирование, вышедшее из занимающего статуса, и возвращает ёмкость ресурсу
func (s *BookingService) release(ctx context.Context, tx repository.Store, booking *model.Booking) error {
	if err := tx.Bookings().Update(ctx, booking); err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if err := tx.Resources().AdjustReserved(ctx, booking.Resource.ID, -booking.ParticipantCount); err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	return nil
}

// UpdatePaymentStatus применяет внешнее событие оплаты. Статус бронирования не меняется.
// Повторная доставка того же статуса ничего не делает.
func (s *BookingService) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) (*model.Booking, error) {
	if !status.Valid() {
		return nil, model.InvalidArgument("unknown payment status %q", status)
	}

	var previous model.PaymentStatus
	booking, resource, err := s.inBooking(ctx, id, func(ctx context.Context, tx repository.Store, booking *model.Booking, _ *model.Resource) error {
		previous = booking.PaymentStatus
		if previous == status {
			return nil
		}
		if err := booking.SetPaymentStatus(status, s.now()); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if previous == status {
		return booking, nil
	}

	s.logger.Info("Payment status updated",
		zap.Stringer("booking_id", booking.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)

	s.events.notify(ctx, EventPaymentStatusChanged, []uuid.UUID{booking.UserID, resource.ProviderID}, bookingPayload(booking))

	return booking, nil
}

// GetBooking возвращает бронирование по ID
func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.store.Bookings().GetByID(ctx, id)
}

// ListUserBookings возвращает бронирования пользователя
func (s *BookingService) ListUserBookings(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error) {
	bookings, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return bookings, nil
}

// ListOverdueBookings возвращает подтверждённые бронирования, окно которых уже закончилось
func (s *BookingService) ListOverdueBookings(ctx context.Context) ([]*model.Booking, error) {
	bookings, err := s.store.Bookings().ListOverdue(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list overdue bookings: %w", err)
	}
	return bookings, nil
}

func bookingPayload(b *model.Booking) map[string]any {
	return map[string]any{
		"booking_id":     b.ID.String(),
		"resource":       b.Resource.String(),
		"status":         string(b.Status),
		"payment_status": string(b.PaymentStatus),
		"start":          b.Window.Start,
		"end":            b.Window.End,
	}
}
