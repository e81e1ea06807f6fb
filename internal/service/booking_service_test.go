package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateBooking_CapacityScenario(t *testing.T) {
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 2, false)

	e.book(t, r, slot(9, 10), 1)
	e.book(t, r, slot(10, 11), 1)

	_, err := e.bookings.CreateBooking(context.Background(), CreateBookingParams{
		ResourceID:       r.ID,
		UserID:           uuid.New(),
		Window:           slot(11, 12),
		ParticipantCount: 1,
	})

	var capErr *model.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Capacity)
	assert.Equal(t, 2, capErr.Reserved)
	assert.Equal(t, 2, e.reserved(t, r.ID))
}

func TestCreateBooking_SlotConflict(t *testing.T) {
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 5, false)
	first := e.book(t, r, slot(9, 11), 1)

	_, err := e.bookings.CreateBooking(context.Background(), CreateBookingParams{
		ResourceID:       r.ID,
		UserID:           uuid.New(),
		Window:           slot(10, 12),
		ParticipantCount: 1,
	})

	var conflict *model.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID.String(), conflict.ConflictsWith)
	assert.Equal(t, 1, e.reserved(t, r.ID))

	e.book(t, r, slot(11, 12), 1)
}

func TestCreateBooking_InitialStatus(t *testing.T) {
	tests := []struct {
		name     string
		approval bool
		policy   PaymentPolicy
		want     model.BookingStatus
	}{
		{"instant", false, PaymentPolicy{}, model.BookingStatusConfirmed},
		{"needs approval", true, PaymentPolicy{}, model.BookingStatusPending},
		{"needs payment", false, PaymentPolicy{Required: map[model.ResourceKind]bool{model.ResourceKindClass: true}}, model.BookingStatusPending},
		{"payment for other kind", false, PaymentPolicy{Required: map[model.ResourceKind]bool{model.ResourceKindService: true}}, model.BookingStatusConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.policy)
			b := e.book(t, e.resource(t, 1, tt.approval), slot(9, 10), 1)
			assert.Equal(t, tt.want, b.Status)
			assert.Equal(t, model.PaymentStatusPending, b.PaymentStatus)
		})
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 2, false)

	tests := []struct {
		name   string
		params CreateBookingParams
		target error
	}{
		{"no user", CreateBookingParams{ResourceID: r.ID, Window: slot(9, 10), ParticipantCount: 1}, model.ErrInvalidArgument},
		{"empty window", CreateBookingParams{ResourceID: r.ID, UserID: uuid.New(), Window: slot(9, 9), ParticipantCount: 1}, model.ErrInvalidArgument},
		{"no participants", CreateBookingParams{ResourceID: r.ID, UserID: uuid.New(), Window: slot(9, 10)}, model.ErrInvalidArgument},
		{"past window", CreateBookingParams{ResourceID: r.ID, UserID: uuid.New(), Window: slot(-20, -19), ParticipantCount: 1}, model.ErrInvalidArgument},
		{"unknown resource", CreateBookingParams{ResourceID: uuid.New(), UserID: uuid.New(), Window: slot(9, 10), ParticipantCount: 1}, model.ErrNotFound},
		{"over capacity", CreateBookingParams{ResourceID: r.ID, UserID: uuid.New(), Window: slot(9, 10), ParticipantCount: 3}, model.ErrCapacityExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.bookings.CreateBooking(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Equal(t, 0, e.reserved(t, r.ID))
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 1, false)

	const attempts = 32
	var succeeded, rejected atomic.Int32
	var g errgroup.Group
	for range attempts {
		g.Go(func() error {
			_, err := e.bookings.CreateBooking(context.Background(), CreateBookingParams{
				ResourceID:       r.ID,
				UserID:           uuid.New(),
				Window:           slot(9, 10),
				ParticipantCount: 1,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, model.ErrCapacityExceeded), errors.Is(err, model.ErrSlotConflict):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, attempts-1, rejected.Load())
	assert.Equal(t, 1, e.reserved(t, r.ID))
}

func TestCancelBooking_ReleasesCapacityAndSlot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 1, false)
	_, err := e.availability.CreateRule(ctx, r.ProviderID, workingDays, 9*60, 17*60, "UTC")
	require.NoError(t, err)

	b := e.book(t, r, slot(11, 12), 1)

	free, err := e.availability.ListAvailableSlots(ctx, r.ID, wednesday, 60*minute, 60*minute)
	require.NoError(t, err)
	assert.NotContains(t, free, slot(11, 12))

	cancelled, err := e.bookings.CancelBooking(ctx, b.ID, b.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, b.UserID, *cancelled.CancelledBy)
	assert.Equal(t, 0, e.reserved(t, r.ID))

	free, err = e.availability.ListAvailableSlots(ctx, r.ID, wednesday, 60*minute, 60*minute)
	require.NoError(t, err)
	assert.Contains(t, free, slot(11, 12))
	assert.Len(t, free, 8)

	e.book(t, r, slot(11, 12), 1)
}

func TestCancelBooking_IdempotentAndGuarded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 3, false)
	b := e.book(t, r, slot(9, 10), 2)

	_, err := e.bookings.CancelBooking(ctx, b.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
	assert.Equal(t, 2, e.reserved(t, r.ID))

	_, err = e.bookings.CancelBooking(ctx, b.ID, r.ProviderID)
	require.NoError(t, err)
	again, err := e.bookings.CancelBooking(ctx, b.ID, b.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, again.Status)
	assert.Equal(t, 0, e.reserved(t, r.ID), "capacity released exactly once")
	assert.Len(t, e.notifier.sent(EventBookingCancelled), 1)

	_, err = e.bookings.CancelBooking(ctx, uuid.New(), b.UserID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirmBooking_PaymentGate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{Required: map[model.ResourceKind]bool{model.ResourceKindClass: true}})
	r := e.resource(t, 1, false)
	b := e.book(t, r, slot(9, 10), 1)

	_, err := e.bookings.ConfirmBooking(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	for _, s := range []model.PaymentStatus{model.PaymentStatusProcessing, model.PaymentStatusCompleted} {
		_, err := e.bookings.UpdatePaymentStatus(ctx, b.ID, s)
		require.NoError(t, err)
	}

	confirmed, err := e.bookings.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, confirmed.Status)

	_, err = e.bookings.ConfirmBooking(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

func TestUpdatePaymentStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	b := e.book(t, e.resource(t, 1, true), slot(9, 10), 1)

	_, err := e.bookings.UpdatePaymentStatus(ctx, b.ID, model.PaymentStatusCompleted)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	updated, err := e.bookings.UpdatePaymentStatus(ctx, b.ID, model.PaymentStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusProcessing, updated.PaymentStatus)
	assert.Equal(t, model.BookingStatusPending, updated.Status, "payment never moves the booking")

	_, err = e.bookings.UpdatePaymentStatus(ctx, b.ID, model.PaymentStatusProcessing)
	require.NoError(t, err, "redelivery is accepted")
	assert.Len(t, e.notifier.sent(EventPaymentStatusChanged), 1)

	_, err = e.bookings.UpdatePaymentStatus(ctx, b.ID, "settled")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestMarkCompletedAndNoShow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 2, false)
	done := e.book(t, r, slot(9, 10), 1)
	absent := e.book(t, r, slot(10, 11), 1)

	_, err := e.bookings.MarkCompleted(ctx, done.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition, "window has not ended")

	e.clock = hour(12)

	overdue, err := e.bookings.ListOverdueBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, overdue, 2)

	completed, err := e.bookings.MarkCompleted(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, completed.Status)

	noShow, err := e.bookings.MarkNoShow(ctx, absent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusNoShow, noShow.Status)
	assert.Equal(t, 0, e.reserved(t, r.ID))

	_, err = e.bookings.CancelBooking(ctx, done.ID, done.UserID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

func TestNotificationFailureKeepsCommittedState(t *testing.T) {
	e := newEnv(t, PaymentPolicy{})
	e.notifier.notifyFn = func(string) error { return errors.New("broker down") }
	r := e.resource(t, 1, false)

	b := e.book(t, r, slot(9, 10), 1)
	assert.Equal(t, model.BookingStatusConfirmed, b.Status)
	assert.Equal(t, 1, e.reserved(t, r.ID))
	assert.Len(t, e.notifier.sent(EventBookingCreated), 1)
}

func TestListUserBookings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	r := e.resource(t, 3, false)
	user := uuid.New()

	for _, w := range []model.TimeWindow{slot(9, 10), slot(13, 14)} {
		_, err := e.bookings.CreateBooking(ctx, CreateBookingParams{ResourceID: r.ID, UserID: user, Window: w, ParticipantCount: 1})
		require.NoError(t, err)
	}
	e.book(t, r, slot(10, 11), 1)

	bookings, err := e.bookings.ListUserBookings(ctx, user)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	for _, b := range bookings {
		assert.Equal(t, user, b.UserID)
	}
}
