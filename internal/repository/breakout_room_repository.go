package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PgBreakoutRoomRepository struct {
	*base.Repository
}

func NewBreakoutRoomRepository(db base.DBTX) *PgBreakoutRoomRepository {
	return &PgBreakoutRoomRepository{Repository: base.NewRepository(db)}
}

const roomColumns = `id, session_id, name, max_participants, current_participants, host_id, active, created_at, closed_at`

// Create создаёт комнату для сессии
func (r *PgBreakoutRoomRepository) Create(ctx context.Context, room *model.BreakoutRoom) error {
	query := `
		INSERT INTO breakout_rooms (id, session_id, name, max_participants, current_participants, host_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		room.ID,
		room.SessionID,
		room.Name,
		room.MaxParticipants,
		room.CurrentParticipants,
		room.HostID,
		room.Active,
	).Scan(&room.CreatedAt)
	if err != nil {
		return fmt.Errorf("create breakout room: %w", err)
	}

	return nil
}

// GetByID получает комнату вместе с историей назначений
func (r *PgBreakoutRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BreakoutRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM breakout_rooms WHERE id = $1`

	room, err := scanRoom(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, &model.NotFoundError{Entity: "breakout room", ID: id.String()}
		}
		return nil, fmt.Errorf("get breakout room by id: %w", err)
	}

	if room.Assignments, err = r.assignments(ctx, id); err != nil {
		return nil, err
	}

	return room, nil
}

// ListBySession получает все комнаты сессии
func (r *PgBreakoutRoomRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.BreakoutRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM breakout_rooms WHERE session_id = $1 ORDER BY created_at, id`

	rows, err := r.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list breakout rooms by session: %w", err)
	}

	var rooms []*model.BreakoutRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan breakout room: %w", err)
		}
		rooms = append(rooms, room)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list breakout rooms by session: %w", err)
	}

	for _, room := range rooms {
		if room.Assignments, err = r.assignments(ctx, room.ID); err != nil {
			return nil, err
		}
	}

	return rooms, nil
}

// Save сохраняет счётчик и назначения одной транзакцией вызывающего
func (r *PgBreakoutRoomRepository) Save(ctx context.Context, room *model.BreakoutRoom) error {
	query := `
		UPDATE breakout_rooms
		SET current_participants = $2, active = $3, closed_at = $4
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, room.ID, room.CurrentParticipants, room.Active, room.ClosedAt)
	if err != nil {
		return fmt.Errorf("save breakout room: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "breakout room", ID: room.ID.String()}
	}

	upsert := `
		INSERT INTO breakout_assignments (room_id, user_id, assigned_at, left_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id, user_id, assigned_at) DO UPDATE SET left_at = EXCLUDED.left_at
	`
	for _, a := range room.Assignments {
		if _, err := r.ExecAffected(ctx, upsert, room.ID, a.UserID, a.AssignedAt, a.LeftAt); err != nil {
			return fmt.Errorf("upsert breakout assignment %s: %w", a.UserID, err)
		}
	}

	return nil
}

func (r *PgBreakoutRoomRepository) assignments(ctx context.Context, roomID uuid.UUID) ([]model.Assignment, error) {
	query := `
		SELECT user_id, assigned_at, left_at
		FROM breakout_assignments
		WHERE room_id = $1
		ORDER BY assigned_at, user_id
	`

	rows, err := r.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("get breakout assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.UserID, &a.AssignedAt, &a.LeftAt); err != nil {
			return nil, fmt.Errorf("scan breakout assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

func scanRoom(row pgx.Row) (*model.BreakoutRoom, error) {
	var room model.BreakoutRoom
	err := row.Scan(
		&room.ID,
		&room.SessionID,
		&room.Name,
		&room.MaxParticipants,
		&room.CurrentParticipants,
		&room.HostID,
		&room.Active,
		&room.CreatedAt,
		&room.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}
