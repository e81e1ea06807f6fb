package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
)

type PgLiveSessionRepository struct {
	*base.Repository
}

func NewLiveSessionRepository(db base.DBTX) *PgLiveSessionRepository {
	return &PgLiveSessionRepository{Repository: base.NewRepository(db)}
}

// Create создаёт live-сессию
func (r *PgLiveSessionRepository) Create(ctx context.Context, session *model.LiveSession) error {
	query := `
		INSERT INTO live_sessions (id, host_id, title, start_time, end_time, max_participants, status, access,
			breakout_rooms, recording, chat, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		session.ID,
		session.HostID,
		session.Title,
		session.Window.Start,
		session.Window.End,
		session.MaxParticipants,
		session.Status,
		session.Access,
		session.Features.BreakoutRooms,
		session.Features.Recording,
		session.Features.Chat,
		session.Metadata,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create live session: %w", err)
	}

	return r.upsertParticipants(ctx, session)
}

// GetByID получает сессию вместе с участниками
func (r *PgLiveSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LiveSession, error) {
	query := `
		SELECT id, host_id, title, start_time, end_time, max_participants, status, access,
			breakout_rooms, recording, chat, metadata, created_at, updated_at
		FROM live_sessions
		WHERE id = $1
	`

	var session model.LiveSession
	err := r.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.HostID,
		&session.Title,
		&session.Window.Start,
		&session.Window.End,
		&session.MaxParticipants,
		&session.Status,
		&session.Access,
		&session.Features.BreakoutRooms,
		&session.Features.Recording,
		&session.Features.Chat,
		&session.Metadata,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, &model.NotFoundError{Entity: "live session", ID: id.String()}
		}
		return nil, fmt.Errorf("get live session by id: %w", err)
	}

	participants, err := r.participants(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Participants = participants

	return &session, nil
}

// Save сохраняет статус сессии и её участников
func (r *PgLiveSessionRepository) Save(ctx context.Context, session *model.LiveSession) error {
	query := `
		UPDATE live_sessions
		SET status = $2, metadata = $3, updated_at = $4
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, session.ID, session.Status, session.Metadata, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save live session: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "live session", ID: session.ID.String()}
	}

	return r.upsertParticipants(ctx, session)
}

func (r *PgLiveSessionRepository) participants(ctx context.Context, sessionID uuid.UUID) ([]model.Participant, error) {
	query := `
		SELECT user_id, role, status, registered_at, joined_at, left_at
		FROM session_participants
		WHERE session_id = $1
		ORDER BY registered_at, user_id
	`

	rows, err := r.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session participants: %w", err)
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.UserID, &p.Role, &p.Status, &p.RegisteredAt, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, fmt.Errorf("scan session participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (r *PgLiveSessionRepository) upsertParticipants(ctx context.Context, session *model.LiveSession) error {
	query := `
		INSERT INTO session_participants (session_id, user_id, role, status, registered_at, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, status = EXCLUDED.status, joined_at = EXCLUDED.joined_at, left_at = EXCLUDED.left_at
	`

	for _, p := range session.Participants {
		_, err := r.ExecAffected(ctx, query, session.ID, p.UserID, p.Role, p.Status, p.RegisteredAt, p.JoinedAt, p.LeftAt)
		if err != nil {
			return fmt.Errorf("upsert session participant %s: %w", p.UserID, err)
		}
	}

	return nil
}
