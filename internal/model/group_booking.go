package model

import (
	"time"

	"github.com/google/uuid"
)

type GroupStatus string

const (
	GroupStatusPending   GroupStatus = "pending"
	GroupStatusPartial   GroupStatus = "partial"
	GroupStatusConfirmed GroupStatus = "confirmed"
	GroupStatusCancelled GroupStatus = "cancelled"
)

type MemberStatus string

const (
	MemberStatusPending   MemberStatus = "pending"
	MemberStatusConfirmed MemberStatus = "confirmed"
	MemberStatusDeclined  MemberStatus = "declined"
)

var memberTransitions = transitions[MemberStatus]{
	MemberStatusPending:   {MemberStatusConfirmed, MemberStatusDeclined},
	MemberStatusConfirmed: {MemberStatusPending},
	MemberStatusDeclined:  {MemberStatusPending},
}

func (s MemberStatus) Valid() bool {
	return s == MemberStatusPending || s == MemberStatusConfirmed || s == MemberStatusDeclined
}

func (s MemberStatus) CanTransitionTo(next MemberStatus) bool {
	return memberTransitions.allows(s, next)
}

type Member struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Status       MemberStatus `json:"status"`
	PaymentShare int64        `json:"payment_share,omitempty"` // в копейках/центах
	JoinedAt     time.Time    `json:"joined_at"`
	RespondedAt  *time.Time   `json:"responded_at,omitempty"`
}

// GroupBooking не хранит статус: Status() выводит его из участников
type GroupBooking struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   uuid.UUID   `json:"owner_id"`
	Resource  ResourceRef `json:"resource"`
	Capacity  int         `json:"capacity"`
	Members   []Member    `json:"members"`
	Cancelled bool        `json:"cancelled"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (g *GroupBooking) ConfirmedCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Status == MemberStatusConfirmed {
			n++
		}
	}
	return n
}

// ActiveCount число участников без отказавшихся (DECLINED)
func (g *GroupBooking) ActiveCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Status != MemberStatusDeclined {
			n++
		}
	}
	return n
}

// HeldSlots сколько мест группы занято; отменённая группа мест не держит
func (g *GroupBooking) HeldSlots() int {
	if g.Cancelled {
		return 0
	}
	return g.ActiveCount()
}

// Progress = confirmed/active, 0 если активных участников нет
func (g *GroupBooking) Progress() float64 {
	active := g.ActiveCount()
	if active == 0 {
		return 0
	}
	return float64(g.ConfirmedCount()) / float64(active)
}

func (g *GroupBooking) Status() GroupStatus {
	if g.Cancelled {
		return GroupStatusCancelled
	}
	confirmed, active := g.ConfirmedCount(), g.ActiveCount()
	switch {
	case confirmed == 0:
		return GroupStatusPending
	case confirmed == active:
		return GroupStatusConfirmed
	default:
		return GroupStatusPartial
	}
}

func (g *GroupBooking) Member(memberID uuid.UUID) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].ID == memberID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

func (g *GroupBooking) MemberByUser(userID uuid.UUID) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// PendingUserIDs возвращает ещё не ответивших участников в порядке вступления
func (g *GroupBooking) PendingUserIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, m := range g.Members {
		if m.Status == MemberStatusPending {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}
