package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
)

type PgGroupBookingRepository struct {
	*base.Repository
}

func NewGroupBookingRepository(db base.DBTX) *PgGroupBookingRepository {
	return &PgGroupBookingRepository{Repository: base.NewRepository(db)}
}

// Create создаёт групповое бронирование вместе с участниками
func (r *PgGroupBookingRepository) Create(ctx context.Context, group *model.GroupBooking) error {
	query := `
		INSERT INTO group_bookings (id, owner_id, class_id, service_id, capacity, status, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	classID, serviceID := refColumns(group.Resource)
	err := r.QueryRow(
		ctx, query,
		group.ID,
		group.OwnerID,
		classID,
		serviceID,
		group.Capacity,
		group.Status(),
		group.Cancelled,
	).Scan(&group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create group booking: %w", err)
	}

	return r.upsertMembers(ctx, group)
}

// GetByID получает групповое бронирование по ID вместе с участниками
func (r *PgGroupBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.GroupBooking, error) {
	query := `
		SELECT id, owner_id, class_id, service_id, capacity, cancelled, created_at, updated_at
		FROM group_bookings
		WHERE id = $1
	`

	var (
		group     model.GroupBooking
		classID   *uuid.UUID
		serviceID *uuid.UUID
	)
	err := r.QueryRow(ctx, query, id).Scan(
		&group.ID,
		&group.OwnerID,
		&classID,
		&serviceID,
		&group.Capacity,
		&group.Cancelled,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, &model.NotFoundError{Entity: "group booking", ID: id.String()}
		}
		return nil, fmt.Errorf("get group booking by id: %w", err)
	}
	group.Resource = refFromColumns(classID, serviceID)

	members, err := r.members(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Members = members

	return &group, nil
}

// Save сохраняет группу; статус всегда пишется из производного значения
func (r *PgGroupBookingRepository) Save(ctx context.Context, group *model.GroupBooking) error {
	query := `
		UPDATE group_bookings
		SET status = $2, cancelled = $3, updated_at = $4
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, group.ID, group.Status(), group.Cancelled, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save group booking: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "group booking", ID: group.ID.String()}
	}

	return r.upsertMembers(ctx, group)
}

// ListOpen получает группы, которые ещё ждут ответов участников
func (r *PgGroupBookingRepository) ListOpen(ctx context.Context) ([]*model.GroupBooking, error) {
	query := `
		SELECT id
		FROM group_bookings
		WHERE status IN ('pending', 'partial')
		ORDER BY created_at
	`

	rows, err := r.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open group bookings: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group booking id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list open group bookings: %w", err)
	}

	groups := make([]*model.GroupBooking, 0, len(ids))
	for _, id := range ids {
		group, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, nil
}

func (r *PgGroupBookingRepository) members(ctx context.Context, groupID uuid.UUID) ([]model.Member, error) {
	query := `
		SELECT id, user_id, status, payment_share, joined_at, responded_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, id
	`

	rows, err := r.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("get group members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		err := rows.Scan(&m.ID, &m.UserID, &m.Status, &m.PaymentShare, &m.JoinedAt, &m.RespondedAt)
		if err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (r *PgGroupBookingRepository) upsertMembers(ctx context.Context, group *model.GroupBooking) error {
	query := `
		INSERT INTO group_members (id, group_id, user_id, status, payment_share, joined_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, payment_share = EXCLUDED.payment_share, responded_at = EXCLUDED.responded_at
	`

	for _, m := range group.Members {
		_, err := r.ExecAffected(ctx, query, m.ID, group.ID, m.UserID, m.Status, m.PaymentShare, m.JoinedAt, m.RespondedAt)
		if err != nil {
			return fmt.Errorf("upsert group member %s: %w", m.ID, err)
		}
	}

	return nil
}
