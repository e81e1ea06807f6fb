package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 2030-01-16 is a Wednesday; the clock sits the day before.
var (
	wednesday = time.Date(2030, 1, 16, 0, 0, 0, 0, time.UTC)
	fixedNow  = wednesday.Add(-16 * time.Hour)
)

func hour(h int) time.Time {
	return wednesday.Add(time.Duration(h) * time.Hour)
}

func slot(fromHour, toHour int) model.TimeWindow {
	return model.TimeWindow{Start: hour(fromHour), End: hour(toHour)}
}

type sentEvent struct {
	Event      string
	Recipients []uuid.UUID
	Payload    map[string]any
}

// mockNotifier records events; notifyFn overrides the result when set.
type mockNotifier struct {
	mu       sync.Mutex
	events   []sentEvent
	notifyFn func(event string) error
}

func (m *mockNotifier) Notify(_ context.Context, event string, recipients []uuid.UUID, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, sentEvent{Event: event, Recipients: recipients, Payload: payload})
	if m.notifyFn != nil {
		return m.notifyFn(event)
	}
	return nil
}

func (m *mockNotifier) sent(event string) []sentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentEvent
	for _, e := range m.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type env struct {
	store        *memory.Store
	notifier     *mockNotifier
	availability *AvailabilityService
	bookings     *BookingService
	groups       *GroupBookingService
	sessions     *SessionService
	clock        time.Time
}

func newEnv(t *testing.T, policy PaymentPolicy) *env {
	t.Helper()
	e := &env{store: memory.New(), notifier: &mockNotifier{}, clock: fixedNow}
	logger := zap.NewNop()
	now := func() time.Time { return e.clock }

	e.availability = NewAvailabilityService(e.store, logger)
	e.availability.now = now
	e.bookings = NewBookingService(e.store, policy, e.notifier, logger)
	e.bookings.now = now
	e.groups = NewGroupBookingService(e.store, e.notifier, logger)
	e.groups.now = now
	e.sessions = NewSessionService(e.store, e.notifier, logger)
	e.sessions.now = now
	return e
}

func (e *env) resource(t *testing.T, capacity int, requiresApproval bool) *model.Resource {
	t.Helper()
	r, err := e.bookings.CreateResource(context.Background(), CreateResourceParams{
		Kind:             model.ResourceKindClass,
		ProviderID:       uuid.New(),
		Name:             "Morning yoga",
		Capacity:         capacity,
		RequiresApproval: requiresApproval,
	})
	require.NoError(t, err)
	return r
}

func (e *env) book(t *testing.T, r *model.Resource, w model.TimeWindow, participants int) *model.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(context.Background(), CreateBookingParams{
		ResourceID:       r.ID,
		UserID:           uuid.New(),
		Window:           w,
		ParticipantCount: participants,
	})
	require.NoError(t, err)
	return b
}

func (e *env) reserved(t *testing.T, id uuid.UUID) int {
	t.Helper()
	r, err := e.store.Resources().GetByID(context.Background(), id)
	require.NoError(t, err)
	return r.Reserved
}
