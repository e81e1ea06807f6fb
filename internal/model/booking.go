package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Ожидает подтверждения или оплаты
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusCompleted BookingStatus = "completed" // Состоялось
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено пользователем или провайдером
	BookingStatusNoShow    BookingStatus = "no_show"   // Пользователь не пришёл
)

var bookingTransitions = transitions[BookingStatus]{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted,
		BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// Occupying: бронирование в этом статусе держит ёмкость и занимает своё окно
func (s BookingStatus) Occupying() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

func (s BookingStatus) Terminal() bool {
	return bookingTransitions.terminal(s)
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return bookingTransitions.allows(s, next)
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

var paymentTransitions = transitions[PaymentStatus]{
	PaymentStatusPending:           {PaymentStatusProcessing},
	PaymentStatusProcessing:        {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:            {PaymentStatusProcessing}, // повторное списание
	PaymentStatusCompleted:         {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusRefunded},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return paymentTransitions.allows(s, next)
}

type Booking struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	Resource         ResourceRef    `json:"resource"`
	Window           TimeWindow     `json:"window"`
	ParticipantCount int            `json:"participant_count"`
	Amount           int64          `json:"amount"` // в копейках/центах
	Currency         string         `json:"currency"`
	Status           BookingStatus  `json:"status"`
	PaymentStatus    PaymentStatus  `json:"payment_status"`
	Notes            string         `json:"notes,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CancelledBy      *uuid.UUID     `json:"cancelled_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TransitionTo переводит бронирование в новый статус по таблице переходов
func (b *Booking) TransitionTo(next BookingStatus, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return &InvalidStateTransitionError{Entity: "booking", From: string(b.Status), To: string(next)}
	}
	b.Status = next
	b.UpdatedAt = at
	return nil
}

func (b *Booking) SetPaymentStatus(next PaymentStatus, at time.Time) error {
	if !b.PaymentStatus.CanTransitionTo(next) {
		return &InvalidStateTransitionError{Entity: "payment", From: string(b.PaymentStatus), To: string(next)}
	}
	b.PaymentStatus = next
	b.UpdatedAt = at
	return nil
}
