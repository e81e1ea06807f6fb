package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroup(t *testing.T, e *env, capacity int) *model.GroupBooking {
	t.Helper()
	r := e.resource(t, 10, false)
	g, err := e.groups.CreateGroup(context.Background(), uuid.New(), r.ID, capacity)
	require.NoError(t, err)
	return g
}

func TestGroupStatusFollowsMembers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	g := newGroup(t, e, 4)

	members := make([]*model.Member, 4)
	for i := range members {
		m, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 2500)
		require.NoError(t, err)
		members[i] = m
	}

	steps := []struct {
		member int
		status model.MemberStatus
		want   model.GroupStatus
	}{
		{0, model.MemberStatusConfirmed, model.GroupStatusPartial},
		{1, model.MemberStatusConfirmed, model.GroupStatusPartial},
		{2, model.MemberStatusDeclined, model.GroupStatusPartial},
		{3, model.MemberStatusConfirmed, model.GroupStatusConfirmed},
		{3, model.MemberStatusPending, model.GroupStatusPartial},
	}
	for _, step := range steps {
		m := members[step.member]
		got, err := e.groups.SetMemberStatus(ctx, g.ID, m.ID, m.UserID, step.status)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.Status())

		stored, err := e.groups.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, stored.Status(), "stored aggregate is never stale")
	}

	stored, err := e.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, stored.Progress(), 1e-9)

	changes := e.notifier.sent(EventGroupStatusChanged)
	require.Len(t, changes, 3, "pending->partial, partial->confirmed, confirmed->partial")
	assert.Equal(t, g.OwnerID, changes[0].Recipients[0])
}

func TestAddMember_Capacity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	g := newGroup(t, e, 2)

	first, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err)
	_, err = e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err)

	_, err = e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	same, err := e.groups.AddMember(ctx, g.ID, first.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID, "re-adding returns the existing member")

	_, err = e.groups.SetMemberStatus(ctx, g.ID, first.ID, first.UserID, model.MemberStatusDeclined)
	require.NoError(t, err)

	late, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err, "a declined member frees a slot")

	_, err = e.groups.SetMemberStatus(ctx, g.ID, first.ID, first.UserID, model.MemberStatusPending)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded, "coming back needs a free slot")

	stored, err := e.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ActiveCount())
	_, ok := stored.Member(late.ID)
	assert.True(t, ok)
}

func TestSetMemberStatus_Guards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	g := newGroup(t, e, 3)
	m, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err)

	_, err = e.groups.SetMemberStatus(ctx, g.ID, m.ID, uuid.New(), model.MemberStatusConfirmed)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = e.groups.SetMemberStatus(ctx, g.ID, uuid.New(), g.OwnerID, model.MemberStatusConfirmed)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.groups.SetMemberStatus(ctx, g.ID, m.ID, g.OwnerID, model.MemberStatusPending)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	_, err = e.groups.SetMemberStatus(ctx, g.ID, m.ID, g.OwnerID, model.MemberStatusConfirmed)
	require.NoError(t, err, "the owner may answer for a member")
}

func TestCancelGroup(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	g := newGroup(t, e, 3)
	m, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err)

	_, err = e.groups.CancelGroup(ctx, g.ID, m.UserID)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	cancelled, err := e.groups.CancelGroup(ctx, g.ID, g.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, model.GroupStatusCancelled, cancelled.Status())
	assert.Equal(t, 0, cancelled.HeldSlots())

	_, err = e.groups.CancelGroup(ctx, g.ID, g.OwnerID)
	require.NoError(t, err)
	assert.Len(t, e.notifier.sent(EventGroupCancelled), 1)

	_, err = e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
	_, err = e.groups.SetMemberStatus(ctx, g.ID, m.ID, m.UserID, model.MemberStatusConfirmed)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

func TestSendReminders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, PaymentPolicy{})
	g := newGroup(t, e, 3)

	answered, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err)
	waiting, err := e.groups.AddMember(ctx, g.ID, uuid.New(), 0)
	require.NoError(t, err)
	_, err = e.groups.SetMemberStatus(ctx, g.ID, answered.ID, answered.UserID, model.MemberStatusConfirmed)
	require.NoError(t, err)

	open, err := e.groups.ListOpenGroups(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	n, err := e.groups.SendReminders(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reminders := e.notifier.sent(EventGroupReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, []uuid.UUID{waiting.UserID}, reminders[0].Recipients)

	stored, err := e.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GroupStatusPartial, stored.Status())
}
