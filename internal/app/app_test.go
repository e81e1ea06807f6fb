package app

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/config"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:      "test",
		Storage:          config.StorageMemory,
		ReminderInterval: time.Hour,
		SweepInterval:    time.Hour,
	}
}

func TestNewWithMemoryStorage(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), NewLogger("test"))
	require.NoError(t, err)
	defer a.Close()

	r, err := a.Bookings.CreateResource(ctx, service.CreateResourceParams{
		Kind:       model.ResourceKindService,
		ProviderID: uuid.New(),
		Capacity:   1,
	})
	require.NoError(t, err)

	b, err := a.Bookings.CreateBooking(ctx, service.CreateBookingParams{
		ResourceID:       r.ID,
		UserID:           uuid.New(),
		Window:           model.TimeWindow{Start: time.Now().Add(time.Hour), End: time.Now().Add(2 * time.Hour)},
		ParticipantCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, b.Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), NewLogger("test"))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
