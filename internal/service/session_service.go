package service

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionService struct {
	store  repository.Store
	events postCommit
	logger *zap.Logger
	now    clock
}

func NewSessionService(store repository.Store, notifier Notifier, logger *zap.Logger) *SessionService {
	return &SessionService{
		store:  store,
		events: postCommit{notifier: notifier, logger: logger},
		logger: logger,
		now:    time.Now,
	}
}

type CreateSessionParams struct {
	HostID          uuid.UUID
	Title           string
	Window          model.TimeWindow
	MaxParticipants int
	Access          model.AccessPolicy
	Features        model.SessionFeatures
	Metadata        map[string]any
}

// CreateSession создаёт живую сессию в статусе DRAFT
func (s *SessionService) CreateSession(ctx context.Context, p CreateSessionParams) (*model.LiveSession, error) {
	if p.HostID == uuid.Nil {
		return nil, model.InvalidArgument("host is required")
	}
	if !p.Window.Start.Before(p.Window.End) {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidArgument, model.ErrInvalidWindow)
	}
	if p.MaxParticipants < 1 {
		return nil, model.InvalidArgument("max participants must be positive, got %d", p.MaxParticipants)
	}
	switch p.Access {
	case "":
		p.Access = model.AccessPublic
	case model.AccessPublic, model.AccessInviteOnly, model.AccessPaid:
	default:
		return nil, model.InvalidArgument("unknown access policy %q", p.Access)
	}

	now := s.now()
	session := &model.LiveSession{
		ID:              uuid.New(),
		HostID:          p.HostID,
		Title:           strings.TrimSpace(p.Title),
		Window:          p.Window,
		MaxParticipants: p.MaxParticipants,
		Status:          model.SessionStatusDraft,
		Access:          p.Access,
		Features:        p.Features,
		Metadata:        maps.Clone(p.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create live session: %w", err)
	}

	s.logger.Info("Live session created",
		zap.Stringer("session_id", session.ID),
		zap.Stringer("host_id", session.HostID),
		zap.Int("max_participants", session.MaxParticipants),
		zap.Bool("breakout_rooms", session.Features.BreakoutRooms),
	)

	return session, nil
}

// GetSession возвращает сессию по ID
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID) (*model.LiveSession, error) {
	return s.store.Sessions().GetByID(ctx, id)
}

// ScheduleSession публикует черновик
func (s *SessionService) ScheduleSession(ctx context.Context, id, actor uuid.UUID) (*model.LiveSession, error) {
	return s.transition(ctx, id, actor, model.SessionStatusScheduled)
}

// StartSession переводит сессию в эфир
func (s *SessionService) StartSession(ctx context.Context, id, actor uuid.UUID) (*model.LiveSession, error) {
	return s.transition(ctx, id, actor, model.SessionStatusLive)
}

// EndSession завершает сессию и закрывает все комнаты
func (s *SessionService) EndSession(ctx context.Context, id, actor uuid.UUID) (*model.LiveSession, error) {
	return s.transition(ctx, id, actor, model.SessionStatusEnded)
}

// CancelSession отменяет сессию; повторная отмена ничего не делает
func (s *SessionService) CancelSession(ctx context.Context, id, actor uuid.UUID) (*model.LiveSession, error) {
	return s.transition(ctx, id, actor, model.SessionStatusCancelled)
}

func (s *SessionService) transition(ctx context.Context, id, actor uuid.UUID, next model.SessionStatus) (*model.LiveSession, error) {
	var (
		session *model.LiveSession
		from    model.SessionStatus
		closed  int
	)
	err := s.store.Atomically(ctx, repository.SessionKey(id), func(ctx context.Context, tx repository.Store) error {
		var err error
		if session, err = tx.Sessions().GetByID(ctx, id); err != nil {
			return err
		}
		if actor != session.HostID {
			return &model.PermissionDeniedError{Actor: actor.String(), Action: fmt.Sprintf("move session %s to %s", id, next)}
		}

		from = session.Status
		if from == next && next == model.SessionStatusCancelled {
			return nil
		}

		now := s.now()
		if err := session.TransitionTo(next, now); err != nil {
			return err
		}
		if err := tx.Sessions().Save(ctx, session); err != nil {
			return fmt.Errorf("save live session: %w", err)
		}

		if next.Terminal() {
			if closed, err = s.closeRooms(ctx, tx, id, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from == next {
		return session, nil
	}

	s.logger.Info("Live session status changed",
		zap.Stringer("session_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.Int("rooms_closed", closed),
	)

	s.events.notify(ctx, EventSessionStatusChanged, sessionRecipients(session), map[string]any{
		"session_id":      id.String(),
		"status":          string(next),
		"previous_status": string(from),
	})

	return session, nil
}

// closeRooms закрывает все активные комнаты сессии. Вызывается под блокировкой сессии.
func (s *SessionService) closeRooms(ctx context.Context, tx repository.Store, sessionID uuid.UUID, at time.Time) (int, error) {
	rooms, err := tx.Rooms().ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list breakout rooms: %w", err)
	}

	closed := 0
	for _, room := range rooms {
		if !room.Active {
			continue
		}
		room.Close(at)
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return 0, fmt.Errorf("save breakout room: %w", err)
		}
		closed++
	}
	return closed, nil
}

// RegisterParticipant записывает пользователя на сессию.
// Повторная регистрация активного участника возвращает его запись.
func (s *SessionService) RegisterParticipant(ctx context.Context, sessionID, userID uuid.UUID, role model.ParticipantRole) (*model.Participant, error) {
	switch role {
	case "":
		role = model.RoleAttendee
	case model.RoleCoHost, model.RolePanelist, model.RoleAttendee, model.RoleModerator:
	default:
		return nil, model.InvalidArgument("role %q cannot be registered", role)
	}
	if userID == uuid.Nil {
		return nil, model.InvalidArgument("user is required")
	}

	var (
		participant model.Participant
		existed     bool
	)
	err := s.store.Atomically(ctx, repository.SessionKey(sessionID), func(ctx context.Context, tx repository.Store) error {
		session, err := tx.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return &model.InvalidStateTransitionError{
				Entity: "live session",
				From:   string(session.Status),
				To:     string(session.Status),
				Reason: "registration is closed",
			}
		}
		if userID == session.HostID {
			return model.InvalidArgument("host is already part of the session")
		}

		if p, ok := session.Participant(userID); ok {
			switch {
			case p.Status == model.ParticipantBanned:
				return &model.PermissionDeniedError{Actor: userID.String(), Action: "register for session " + sessionID.String()}
			case p.Status.Terminal():
				return &model.InvalidStateTransitionError{
					Entity: "participant",
					From:   string(p.Status),
					To:     string(model.ParticipantRegistered),
				}
			}
			participant, existed = *p, true
			return nil
		}

		if session.ActiveParticipants()+1 > session.MaxParticipants {
			return &model.CapacityExceededError{
				Entity:    "live session",
				ID:        sessionID.String(),
				Capacity:  session.MaxParticipants,
				Reserved:  session.ActiveParticipants(),
				Requested: 1,
			}
		}

		now := s.now()
		participant = model.Participant{
			UserID:       userID,
			Role:         role,
			Status:       model.ParticipantRegistered,
			RegisteredAt: now,
		}
		session.Participants = append(session.Participants, participant)
		session.UpdatedAt = now

		if err := tx.Sessions().Save(ctx, session); err != nil {
			return fmt.Errorf("save live session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existed {
		return &participant, nil
	}

	s.logger.Info("Participant registered",
		zap.Stringer("session_id", sessionID),
		zap.Stringer("user_id", userID),
		zap.String("role", string(role)),
	)

	return &participant, nil
}

// JoinSession отмечает вход участника в эфир
func (s *SessionService) JoinSession(ctx context.Context, sessionID, userID uuid.UUID) (*model.Participant, error) {
	return s.updateParticipant(ctx, sessionID, userID, func(session *model.LiveSession, p *model.Participant, now time.Time) (bool, error) {
		if session.Status != model.SessionStatusLive {
			return false, &model.InvalidStateTransitionError{
				Entity: "participant",
				From:   string(p.Status),
				To:     string(model.ParticipantJoined),
				Reason: "session is " + string(session.Status),
			}
		}
		if p.Status == model.ParticipantJoined {
			return false, nil
		}
		if err := moveParticipant(p, model.ParticipantJoined); err != nil {
			return false, err
		}
		joined := now
		p.JoinedAt = &joined
		return true, nil
	})
}

// LeaveSession отмечает выход участника и убирает его из комнаты
func (s *SessionService) LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) (*model.Participant, error) {
	return s.updateParticipant(ctx, sessionID, userID, func(_ *model.LiveSession, p *model.Participant, now time.Time) (bool, error) {
		if p.Status == model.ParticipantLeft {
			return false, nil
		}
		if err := moveParticipant(p, model.ParticipantLeft); err != nil {
			return false, err
		}
		left := now
		p.LeftAt = &left
		return true, nil
	})
}

// RemoveParticipant удаляет участника; нужна роль модератора
func (s *SessionService) RemoveParticipant(ctx context.Context, sessionID, actor, userID uuid.UUID) (*model.Participant, error) {
	return s.moderate(ctx, sessionID, actor, userID, model.ParticipantRemoved)
}

// BanParticipant блокирует участника; повторно зарегистрироваться он не сможет
func (s *SessionService) BanParticipant(ctx context.Context, sessionID, actor, userID uuid.UUID) (*model.Participant, error) {
	return s.moderate(ctx, sessionID, actor, userID, model.ParticipantBanned)
}

func (s *SessionService) moderate(ctx context.Context, sessionID, actor, userID uuid.UUID, next model.ParticipantStatus) (*model.Participant, error) {
	return s.updateParticipant(ctx, sessionID, userID, func(session *model.LiveSession, p *model.Participant, now time.Time) (bool, error) {
		role, ok := session.RoleOf(actor)
		if !ok || !role.CanModerate() {
			return false, &model.PermissionDeniedError{Actor: actor.String(), Action: fmt.Sprintf("mark participant %s as %s", userID, next)}
		}
		if p.Status == next {
			return false, nil
		}
		if err := moveParticipant(p, next); err != nil {
			return false, err
		}
		left := now
		p.LeftAt = &left
		return true, nil
	})
}

func moveParticipant(p *model.Participant, next model.ParticipantStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return &model.InvalidStateTransitionError{Entity: "participant", From: string(p.Status), To: string(next)}
	}
	p.Status = next
	return nil
}

// updateParticipant применяет fn к участнику под блокировкой сессии. Если fn
// сообщает об изменении, запись сохраняется, а вышедший участник убирается из комнат.
func (s *SessionService) updateParticipant(
	ctx context.Context,
	sessionID, userID uuid.UUID,
	fn func(session *model.LiveSession, p *model.Participant, now time.Time) (bool, error),
) (*model.Participant, error) {
	var (
		participant model.Participant
		changed     bool
	)
	err := s.store.Atomically(ctx, repository.SessionKey(sessionID), func(ctx context.Context, tx repository.Store) error {
		session, err := tx.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		p, ok := session.Participant(userID)
		if !ok {
			return &model.NotFoundError{Entity: "participant", ID: userID.String()}
		}

		now := s.now()
		if changed, err = fn(session, p, now); err != nil {
			return err
		}
		participant = *p
		if !changed {
			return nil
		}

		session.UpdatedAt = now
		if err := tx.Sessions().Save(ctx, session); err != nil {
			return fmt.Errorf("save live session: %w", err)
		}
		if p.Status.Terminal() {
			if _, err := s.dropFromRooms(ctx, tx, sessionID, userID, now, uuid.Nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("Participant status changed",
			zap.Stringer("session_id", sessionID),
			zap.Stringer("user_id", userID),
			zap.String("status", string(participant.Status)),
		)
	}

	return &participant, nil
}

// dropFromRooms завершает назначения пользователя во всех активных комнатах сессии,
// кроме комнаты keep. Возвращает число комнат, из которых он был убран.
func (s *SessionService) dropFromRooms(ctx context.Context, tx repository.Store, sessionID, userID uuid.UUID, at time.Time, keep uuid.UUID) (int, error) {
	rooms, err := tx.Rooms().ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list breakout rooms: %w", err)
	}

	dropped := 0
	for _, room := range rooms {
		if room.ID == keep || !room.Active {
			continue
		}
		if !room.Unassign(userID, at) {
			continue
		}
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return 0, fmt.Errorf("save breakout room: %w", err)
		}
		dropped++
	}
	return dropped, nil
}

type CreateRoomParams struct {
	SessionID       uuid.UUID
	Actor           uuid.UUID
	Name            string
	MaxParticipants int
	// HostID ведёт комнату; по умолчанию Actor
	HostID uuid.UUID
}

// CreateRoom создаёт комнату для работы в группах
func (s *SessionService) CreateRoom(ctx context.Context, p CreateRoomParams) (*model.BreakoutRoom, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, model.InvalidArgument("room name is required")
	}
	if p.MaxParticipants < 1 {
		return nil, model.InvalidArgument("max participants must be positive, got %d", p.MaxParticipants)
	}
	if p.HostID == uuid.Nil {
		p.HostID = p.Actor
	}

	var room *model.BreakoutRoom
	err := s.store.Atomically(ctx, repository.SessionKey(p.SessionID), func(ctx context.Context, tx repository.Store) error {
		session, err := tx.Sessions().GetByID(ctx, p.SessionID)
		if err != nil {
			return err
		}
		if !session.Features.BreakoutRooms {
			return &model.FeatureDisabledError{Feature: "breakout_rooms", ParentID: session.ID.String()}
		}

		role, ok := session.RoleOf(p.Actor)
		if !ok || (role != model.RoleHost && role != model.RoleCoHost) {
			return &model.PermissionDeniedError{Actor: p.Actor.String(), Action: "create breakout room"}
		}
		if hostRole, ok := session.RoleOf(p.HostID); !ok || !hostRole.CanModerate() {
			return model.InvalidArgument("room host %s must be a host, co-host or moderator", p.HostID)
		}
		if session.Status.Terminal() {
			return &model.InvalidStateTransitionError{
				Entity: "live session",
				From:   string(session.Status),
				To:     string(session.Status),
				Reason: "cannot add rooms to a finished session",
			}
		}

		room = &model.BreakoutRoom{
			ID:              uuid.New(),
			SessionID:       session.ID,
			Name:            name,
			MaxParticipants: p.MaxParticipants,
			HostID:          p.HostID,
			Active:          true,
			CreatedAt:       s.now(),
		}
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return fmt.Errorf("create breakout room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Breakout room created",
		zap.Stringer("room_id", room.ID),
		zap.Stringer("session_id", room.SessionID),
		zap.String("name", room.Name),
		zap.Int("max_participants", room.MaxParticipants),
	)

	return room, nil
}

// GetRoom возвращает комнату по ID
func (s *SessionService) GetRoom(ctx context.Context, id uuid.UUID) (*model.BreakoutRoom, error) {
	return s.store.Rooms().GetByID(ctx, id)
}

// ListRooms возвращает комнаты сессии
func (s *SessionService) ListRooms(ctx context.Context, sessionID uuid.UUID) ([]*model.BreakoutRoom, error) {
	rooms, err := s.store.Rooms().ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list breakout rooms: %w", err)
	}
	return rooms, nil
}

// inRoom выполняет fn под блокировкой сессии, которой принадлежит комната
func (s *SessionService) inRoom(ctx context.Context, roomID uuid.UUID, fn func(ctx context.Context, tx repository.Store, session *model.LiveSession, room *model.BreakoutRoom) error) (*model.BreakoutRoom, error) {
	current, err := s.store.Rooms().GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var room *model.BreakoutRoom
	err = s.store.Atomically(ctx, repository.SessionKey(current.SessionID), func(ctx context.Context, tx repository.Store) error {
		var err error
		if room, err = tx.Rooms().GetByID(ctx, roomID); err != nil {
			return err
		}
		session, err := tx.Sessions().GetByID(ctx, room.SessionID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, session, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// AssignParticipants распределяет участников в комнату. Уже назначенные не
// учитываются повторно; из других активных комнат участники переводятся.
// Проверка ёмкости выполняется до любых изменений.
func (s *SessionService) AssignParticipants(ctx context.Context, roomID, actor uuid.UUID, userIDs []uuid.UUID) (*model.BreakoutRoom, error) {
	if len(userIDs) == 0 {
		return nil, model.InvalidArgument("no participants to assign")
	}

	var added, moved []uuid.UUID
	room, err := s.inRoom(ctx, roomID, func(ctx context.Context, tx repository.Store, session *model.LiveSession, room *model.BreakoutRoom) error {
		if !room.Active {
			return &model.InvalidStateTransitionError{Entity: "breakout room", From: "closed", To: "closed", Reason: "room is closed"}
		}
		if role, ok := session.RoleOf(actor); !ok || !role.CanModerate() {
			return &model.PermissionDeniedError{Actor: actor.String(), Action: "assign participants to room " + roomID.String()}
		}

		// Отбираем новых участников, проверяя что они в сессии
		for _, id := range slices.Compact(slices.SortedFunc(slices.Values(userIDs), compareUUID)) {
			p, ok := session.Participant(id)
			if !ok || p.Status.Terminal() {
				return &model.NotFoundError{Entity: "participant", ID: id.String()}
			}
			if !room.Has(id) {
				added = append(added, id)
			}
		}

		if room.CurrentParticipants+len(added) > room.MaxParticipants {
			return &model.CapacityExceededError{
				Entity:    "breakout room",
				ID:        room.ID.String(),
				Capacity:  room.MaxParticipants,
				Reserved:  room.CurrentParticipants,
				Requested: len(added),
			}
		}

		now := s.now()
		for _, id := range added {
			n, err := s.dropFromRooms(ctx, tx, session.ID, id, now, room.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				moved = append(moved, id)
			}
			room.Assign(id, now)
		}

		if err := tx.Rooms().Save(ctx, room); err != nil {
			return fmt.Errorf("save breakout room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return room, nil
	}

	s.logger.Info("Participants assigned to breakout room",
		zap.Stringer("room_id", roomID),
		zap.Int("added", len(added)),
		zap.Int("moved", len(moved)),
		zap.Int("current", room.CurrentParticipants),
		zap.Int("max", room.MaxParticipants),
	)

	s.events.notify(ctx, EventBreakoutAssigned, added, map[string]any{
		"room_id":    roomID.String(),
		"session_id": room.SessionID.String(),
		"name":       room.Name,
	})

	return room, nil
}

// RemoveFromRoom убирает участника из комнаты
func (s *SessionService) RemoveFromRoom(ctx context.Context, roomID, actor, userID uuid.UUID) (*model.BreakoutRoom, error) {
	room, err := s.inRoom(ctx, roomID, func(ctx context.Context, tx repository.Store, session *model.LiveSession, room *model.BreakoutRoom) error {
		if actor != userID {
			if role, ok := session.RoleOf(actor); !ok || !role.CanModerate() {
				return &model.PermissionDeniedError{Actor: actor.String(), Action: "remove participants from room " + roomID.String()}
			}
		}
		if !room.Unassign(userID, s.now()) {
			return &model.NotFoundError{Entity: "room assignment", ID: userID.String()}
		}
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return fmt.Errorf("save breakout room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Participant removed from breakout room",
		zap.Stringer("room_id", roomID),
		zap.Stringer("user_id", userID),
		zap.Int("current", room.CurrentParticipants),
	)

	return room, nil
}

// CloseRoom закрывает комнату; история назначений сохраняется. Повторное закрытие ничего не делает.
func (s *SessionService) CloseRoom(ctx context.Context, roomID, actor uuid.UUID) (*model.BreakoutRoom, error) {
	var (
		members []uuid.UUID
		closed  bool
	)
	room, err := s.inRoom(ctx, roomID, func(ctx context.Context, tx repository.Store, session *model.LiveSession, room *model.BreakoutRoom) error {
		if actor != session.HostID {
			return &model.PermissionDeniedError{Actor: actor.String(), Action: "close room " + roomID.String()}
		}
		if !room.Active {
			return nil
		}
		members, closed = room.Members(), true
		room.Close(s.now())
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return fmt.Errorf("save breakout room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !closed {
		return room, nil
	}

	s.logger.Info("Breakout room closed",
		zap.Stringer("room_id", roomID),
		zap.Int("released", len(members)),
	)

	s.events.notify(ctx, EventBreakoutClosed, members, map[string]any{
		"room_id":    roomID.String(),
		"session_id": room.SessionID.String(),
	})

	return room, nil
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// sessionRecipients: ведущий и все активные участники
func sessionRecipients(session *model.LiveSession) []uuid.UUID {
	ids := []uuid.UUID{session.HostID}
	for _, p := range session.Participants {
		if !p.Status.Terminal() {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
