package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PgBookingRepository struct {
	*base.Repository
}

func NewBookingRepository(db base.DBTX) *PgBookingRepository {
	return &PgBookingRepository{Repository: base.NewRepository(db)}
}

const bookingColumns = `
	id, user_id, class_id, service_id, start_time, end_time, participant_count,
	amount, currency, status, payment_status, notes, metadata, cancelled_by, created_at, updated_at
`

// Create создаёт новое бронирование
func (r *PgBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, class_id, service_id, start_time, end_time, participant_count,
			amount, currency, status, payment_status, notes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	classID, serviceID := refColumns(booking.Resource)
	err := r.QueryRow(
		ctx, query,
		booking.ID,
		booking.UserID,
		classID,
		serviceID,
		booking.Window.Start,
		booking.Window.End,
		booking.ParticipantCount,
		booking.Amount,
		booking.Currency,
		booking.Status,
		booking.PaymentStatus,
		booking.Notes,
		booking.Metadata,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *PgBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, &model.NotFoundError{Entity: "booking", ID: id.String()}
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// Update сохраняет статусы, заметки и метаданные бронирования.
// Окно, ресурс и количество участников после создания не меняются.
func (r *PgBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	query := `
		UPDATE bookings
		SET status = $2, payment_status = $3, notes = $4, metadata = $5, cancelled_by = $6, updated_at = $7
		WHERE id = $1
	`

	affected, err := r.ExecAffected(
		ctx, query,
		booking.ID,
		booking.Status,
		booking.PaymentStatus,
		booking.Notes,
		booking.Metadata,
		booking.CancelledBy,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}

	if affected == 0 {
		return &model.NotFoundError{Entity: "booking", ID: booking.ID.String()}
	}

	return nil
}

// ListOccupyingByProvider получает активные бронирования всех ресурсов провайдера, пересекающие [from, to)
func (r *PgBookingRepository) ListOccupyingByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE COALESCE(class_id, service_id) IN (SELECT id FROM resources WHERE provider_id = $1)
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time, id
	`

	return r.list(ctx, "list occupying bookings by provider", query, providerID, from, to)
}

// ListByUser получает все бронирования пользователя
func (r *PgBookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY start_time DESC
	`

	return r.list(ctx, "list bookings by user", query, userID)
}

// ListOverdue получает подтверждённые бронирования, окно которых уже закончилось
func (r *PgBookingRepository) ListOverdue(ctx context.Context, t time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'confirmed' AND end_time <= $1
		ORDER BY end_time
	`

	return r.list(ctx, "list overdue bookings", query, t)
}

func (r *PgBookingRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		booking   model.Booking
		classID   *uuid.UUID
		serviceID *uuid.UUID
	)
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&classID,
		&serviceID,
		&booking.Window.Start,
		&booking.Window.End,
		&booking.ParticipantCount,
		&booking.Amount,
		&booking.Currency,
		&booking.Status,
		&booking.PaymentStatus,
		&booking.Notes,
		&booking.Metadata,
		&booking.CancelledBy,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	booking.Resource = refFromColumns(classID, serviceID)
	return &booking, nil
}

// refColumns раскладывает ссылку на ресурс по двум взаимоисключающим колонкам
func refColumns(ref model.ResourceRef) (classID, serviceID *uuid.UUID) {
	if id, ok := ref.ClassID(); ok {
		return &id, nil
	}
	if id, ok := ref.ServiceID(); ok {
		return nil, &id
	}
	return nil, nil
}

func refFromColumns(classID, serviceID *uuid.UUID) model.ResourceRef {
	if classID != nil {
		return model.ResourceRef{Kind: model.ResourceKindClass, ID: *classID}
	}
	if serviceID != nil {
		return model.ResourceRef{Kind: model.ResourceKindService, ID: *serviceID}
	}
	return model.ResourceRef{}
}
