package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newSession(t *testing.T, e *env, max int, breakouts bool) *model.LiveSession {
	t.Helper()
	s, err := e.sessions.CreateSession(context.Background(), CreateSessionParams{
		HostID:          uuid.New(),
		Title:           "Quarterly review",
		Window:          slot(14, 16),
		MaxParticipants: max,
		Features:        model.SessionFeatures{BreakoutRooms: breakouts, Chat: true},
	})
	require.NoError(t, err)
	return s
}

func register(t *testing.T, e *env, s *model.LiveSession, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
		_, err := e.sessions.RegisterParticipant(context.Background(), s.ID, ids[i], model.RoleAttendee)
		require.NoError(t, err)
	}
	return ids
}

func newRoom(t *testing.T, e *env, s *model.LiveSession, name string, max int) *model.BreakoutRoom {
	t.Helper()
	room, err := e.sessions.CreateRoom(context.Background(), CreateRoomParams{
		SessionID:       s.ID,
		Actor:           s.HostID,
		Name:            name,
		MaxParticipants: max,
	})
	require.NoError(t, err)
	return room
}

// activeRooms maps each user to the active rooms holding them.
func activeRooms(t *testing.T, e *env, sessionID uuid.UUID) map[uuid.UUID][]uuid.UUID {
	t.Helper()
	rooms, err := e.sessions.ListRooms(context.Background(), sessionID)
	require.NoError(t, err)

	seen := make(map[uuid.UUID][]uuid.UUID)
	for _, room := range rooms {
		assert.Equal(t, len(room.Members()), room.CurrentParticipants, "room %s counter", room.Name)
		if !room.Active {
			continue
		}
		for _, id := range room.Members() {
			seen[id] = append(seen[id], room.ID)
		}
	}
	return seen
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 10, true)
	assert.Equal(t, model.SessionStatusDraft, s.Status)

	_, err := e.sessions.StartSession(ctx, s.ID, s.HostID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
	_, err = e.sessions.ScheduleSession(ctx, s.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = e.sessions.ScheduleSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)
	live, err := e.sessions.StartSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusLive, live.Status)

	ids := register(t, e, s, 2)
	room := newRoom(t, e, s, "Team A", 2)
	_, err = e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids)
	require.NoError(t, err)

	ended, err := e.sessions.EndSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusEnded, ended.Status)

	closed, err := e.sessions.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	assert.Equal(t, 0, closed.CurrentParticipants)

	_, err = e.sessions.CancelSession(ctx, s.ID, s.HostID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
	assert.Len(t, e.notifier.sent(EventSessionStatusChanged), 3)
}

func TestCancelSession_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 10, false)

	_, err := e.sessions.CancelSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)
	again, err := e.sessions.CancelSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, again.Status)
	assert.Len(t, e.notifier.sent(EventSessionStatusChanged), 1)

	_, err = e.sessions.RegisterParticipant(ctx, s.ID, uuid.New(), model.RoleAttendee)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

func TestRegisterParticipant(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 2, false)
	ids := register(t, e, s, 2)

	_, err := e.sessions.RegisterParticipant(ctx, s.ID, uuid.New(), model.RoleAttendee)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	p, err := e.sessions.RegisterParticipant(ctx, s.ID, ids[0], model.RoleAttendee)
	require.NoError(t, err, "registering twice is harmless")
	assert.Equal(t, model.ParticipantRegistered, p.Status)

	_, err = e.sessions.RegisterParticipant(ctx, s.ID, uuid.New(), model.RoleHost)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = e.sessions.BanParticipant(ctx, s.ID, s.HostID, ids[1])
	require.NoError(t, err)
	_, err = e.sessions.RegisterParticipant(ctx, s.ID, ids[1], model.RoleAttendee)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = e.sessions.RegisterParticipant(ctx, s.ID, uuid.New(), "")
	require.NoError(t, err, "a banned participant frees the seat")
}

func TestJoinLeaveAndModeration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 5, false)
	ids := register(t, e, s, 2)
	mod := uuid.New()
	_, err := e.sessions.RegisterParticipant(ctx, s.ID, mod, model.RoleModerator)
	require.NoError(t, err)

	_, err = e.sessions.JoinSession(ctx, s.ID, ids[0])
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition, "session is not live")

	_, err = e.sessions.ScheduleSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)
	_, err = e.sessions.StartSession(ctx, s.ID, s.HostID)
	require.NoError(t, err)

	joined, err := e.sessions.JoinSession(ctx, s.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantJoined, joined.Status)
	require.NotNil(t, joined.JoinedAt)

	left, err := e.sessions.LeaveSession(ctx, s.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantLeft, left.Status)

	_, err = e.sessions.RemoveParticipant(ctx, s.ID, ids[0], ids[1])
	assert.ErrorIs(t, err, model.ErrPermissionDenied, "attendees cannot moderate")

	removed, err := e.sessions.RemoveParticipant(ctx, s.ID, mod, ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantRemoved, removed.Status)

	_, err = e.sessions.JoinSession(ctx, s.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateRoom_Guards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})

	plain := newSession(t, e, 5, false)
	_, err := e.sessions.CreateRoom(ctx, CreateRoomParams{SessionID: plain.ID, Actor: plain.HostID, Name: "A", MaxParticipants: 2})
	var disabled *model.FeatureDisabledError
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, "breakout_rooms", disabled.Feature)

	s := newSession(t, e, 5, true)
	ids := register(t, e, s, 1)
	_, err = e.sessions.CreateRoom(ctx, CreateRoomParams{SessionID: s.ID, Actor: ids[0], Name: "A", MaxParticipants: 2})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = e.sessions.CreateRoom(ctx, CreateRoomParams{SessionID: s.ID, Actor: s.HostID, Name: "A", MaxParticipants: 2, HostID: ids[0]})
	assert.ErrorIs(t, err, model.ErrInvalidArgument, "room host must be able to moderate")

	_, err = e.sessions.CreateRoom(ctx, CreateRoomParams{SessionID: s.ID, Actor: s.HostID, Name: " ", MaxParticipants: 2})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestAssignParticipants_FullRoom(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 10, true)
	ids := register(t, e, s, 4)
	room := newRoom(t, e, s, "Team A", 3)

	_, err := e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids[:3])
	require.NoError(t, err)

	_, err = e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids[3:])
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	stored, err := e.sessions.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CurrentParticipants)
	assert.ElementsMatch(t, ids[:3], stored.Members())

	again, err := e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids[:2])
	require.NoError(t, err, "members already in the room are not counted twice")
	assert.Equal(t, 3, again.CurrentParticipants)
}

func TestAssignParticipants_MovesBetweenRooms(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 10, true)
	ids := register(t, e, s, 3)
	a := newRoom(t, e, s, "A", 3)
	b := newRoom(t, e, s, "B", 3)

	_, err := e.sessions.AssignParticipants(ctx, a.ID, s.HostID, ids)
	require.NoError(t, err)
	_, err = e.sessions.AssignParticipants(ctx, b.ID, s.HostID, ids[:1])
	require.NoError(t, err)

	rooms := activeRooms(t, e, s.ID)
	assert.Equal(t, []uuid.UUID{b.ID}, rooms[ids[0]])
	assert.Equal(t, []uuid.UUID{a.ID}, rooms[ids[1]])

	_, err = e.sessions.AssignParticipants(ctx, a.ID, s.HostID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, model.ErrNotFound, "only session participants can be assigned")
}

func TestAssignParticipants_ConcurrentKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 20, true)
	ids := register(t, e, s, 6)
	rooms := []*model.BreakoutRoom{newRoom(t, e, s, "A", 4), newRoom(t, e, s, "B", 4), newRoom(t, e, s, "C", 4)}

	var g errgroup.Group
	for i, id := range ids {
		for j, room := range rooms {
			if (i+j)%2 == 0 {
				continue
			}
			g.Go(func() error {
				_, _ = e.sessions.AssignParticipants(ctx, room.ID, s.HostID, []uuid.UUID{id})
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	for id, in := range activeRooms(t, e, s.ID) {
		assert.Len(t, in, 1, "participant %s is in one active room", id)
	}
}

func TestRemoveFromRoomAndLeaving(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 10, true)
	ids := register(t, e, s, 3)
	room := newRoom(t, e, s, "A", 3)
	_, err := e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids)
	require.NoError(t, err)

	updated, err := e.sessions.RemoveFromRoom(ctx, room.ID, s.HostID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CurrentParticipants)

	_, err = e.sessions.RemoveFromRoom(ctx, room.ID, s.HostID, ids[0])
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.sessions.BanParticipant(ctx, s.ID, s.HostID, ids[1])
	require.NoError(t, err)

	stored, err := e.sessions.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[2]}, stored.Members())
	assert.Equal(t, 1, stored.CurrentParticipants)
}

func TestCloseRoom(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	s := newSession(t, e, 10, true)
	ids := register(t, e, s, 2)
	room := newRoom(t, e, s, "A", 2)
	_, err := e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids)
	require.NoError(t, err)

	_, err = e.sessions.CloseRoom(ctx, room.ID, ids[0])
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	closed, err := e.sessions.CloseRoom(ctx, room.ID, s.HostID)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	assert.Equal(t, 0, closed.CurrentParticipants)
	assert.Len(t, closed.Assignments, 2, "history is kept")

	again, err := e.sessions.CloseRoom(ctx, room.ID, s.HostID)
	require.NoError(t, err)
	assert.False(t, again.Active)
	assert.Len(t, e.notifier.sent(EventBreakoutClosed), 1)

	_, err = e.sessions.AssignParticipants(ctx, room.ID, s.HostID, ids[:1])
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}
