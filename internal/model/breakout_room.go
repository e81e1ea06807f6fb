package model

import (
	"time"

	"github.com/google/uuid"
)

type Assignment struct {
	UserID     uuid.UUID  `json:"user_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
}

func (a Assignment) Active() bool {
	return a.LeftAt == nil
}

// BreakoutRoom: CurrentParticipants всегда равен числу активных назначений.
// Менять их могут только Assign, Unassign и Close.
type BreakoutRoom struct {
	ID                  uuid.UUID    `json:"id"`
	SessionID           uuid.UUID    `json:"session_id"`
	Name                string       `json:"name"`
	MaxParticipants     int          `json:"max_participants"`
	CurrentParticipants int          `json:"current_participants"`
	HostID              uuid.UUID    `json:"host_id"`
	Active              bool         `json:"active"`
	Assignments         []Assignment `json:"assignments"`
	CreatedAt           time.Time    `json:"created_at"`
	ClosedAt            *time.Time   `json:"closed_at,omitempty"`
}

func (r *BreakoutRoom) Has(userID uuid.UUID) bool {
	for _, a := range r.Assignments {
		if a.UserID == userID && a.Active() {
			return true
		}
	}
	return false
}

// Members возвращает активных участников в порядке назначения
func (r *BreakoutRoom) Members() []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range r.Assignments {
		if a.Active() {
			ids = append(ids, a.UserID)
		}
	}
	return ids
}

func (r *BreakoutRoom) Assign(userID uuid.UUID, at time.Time) {
	if r.Has(userID) {
		return
	}
	r.Assignments = append(r.Assignments, Assignment{UserID: userID, AssignedAt: at})
	r.CurrentParticipants++
}

// Unassign завершает активное назначение пользователя.
// false, если пользователя в комнате не было.
func (r *BreakoutRoom) Unassign(userID uuid.UUID, at time.Time) bool {
	for i := range r.Assignments {
		a := &r.Assignments[i]
		if a.UserID == userID && a.Active() {
			left := at
			a.LeftAt = &left
			r.CurrentParticipants--
			return true
		}
	}
	return false
}

// Close закрывает комнату и завершает все активные назначения, история сохраняется
func (r *BreakoutRoom) Close(at time.Time) {
	for _, id := range r.Members() {
		r.Unassign(id, at)
	}
	closed := at
	r.Active = false
	r.ClosedAt = &closed
}
