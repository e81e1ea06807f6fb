package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusLive      SessionStatus = "live"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusCancelled SessionStatus = "cancelled"
)

var sessionTransitions = transitions[SessionStatus]{
	SessionStatusDraft:     {SessionStatusScheduled, SessionStatusCancelled},
	SessionStatusScheduled: {SessionStatusLive, SessionStatusCancelled},
	SessionStatusLive:      {SessionStatusEnded, SessionStatusCancelled},
}

func (s SessionStatus) Terminal() bool {
	return sessionTransitions.terminal(s)
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return sessionTransitions.allows(s, next)
}

type AccessPolicy string

const (
	AccessPublic     AccessPolicy = "public"
	AccessInviteOnly AccessPolicy = "invite_only"
	AccessPaid       AccessPolicy = "paid"
)

type SessionFeatures struct {
	BreakoutRooms bool `json:"breakout_rooms"`
	Recording     bool `json:"recording"`
	Chat          bool `json:"chat"`
}

type ParticipantRole string

const (
	RoleHost      ParticipantRole = "host"
	RoleCoHost    ParticipantRole = "co_host"
	RolePanelist  ParticipantRole = "panelist"
	RoleAttendee  ParticipantRole = "attendee"
	RoleModerator ParticipantRole = "moderator"
)

// CanModerate: может ли роль удалять и блокировать участников
func (r ParticipantRole) CanModerate() bool {
	return r == RoleHost || r == RoleCoHost || r == RoleModerator
}

type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantJoined     ParticipantStatus = "joined"
	ParticipantLeft       ParticipantStatus = "left"
	ParticipantRemoved    ParticipantStatus = "removed"
	ParticipantBanned     ParticipantStatus = "banned"
)

var participantTransitions = transitions[ParticipantStatus]{
	ParticipantRegistered: {ParticipantJoined, ParticipantRemoved, ParticipantBanned},
	ParticipantJoined:     {ParticipantLeft, ParticipantRemoved, ParticipantBanned},
}

func (s ParticipantStatus) Terminal() bool {
	return participantTransitions.terminal(s)
}

func (s ParticipantStatus) CanTransitionTo(next ParticipantStatus) bool {
	return participantTransitions.allows(s, next)
}

type Participant struct {
	UserID       uuid.UUID         `json:"user_id"`
	Role         ParticipantRole   `json:"role"`
	Status       ParticipantStatus `json:"status"`
	RegisteredAt time.Time         `json:"registered_at"`
	JoinedAt     *time.Time        `json:"joined_at,omitempty"`
	LeftAt       *time.Time        `json:"left_at,omitempty"`
}

type LiveSession struct {
	ID              uuid.UUID       `json:"id"`
	HostID          uuid.UUID       `json:"host_id"`
	Title           string          `json:"title"`
	Window          TimeWindow      `json:"window"`
	MaxParticipants int             `json:"max_participants"`
	Status          SessionStatus   `json:"status"`
	Access          AccessPolicy    `json:"access"`
	Features        SessionFeatures `json:"features"`
	Participants    []Participant   `json:"participants"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (s *LiveSession) TransitionTo(next SessionStatus, at time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return &InvalidStateTransitionError{Entity: "live session", From: string(s.Status), To: string(next)}
	}
	s.Status = next
	s.UpdatedAt = at
	return nil
}

func (s *LiveSession) Participant(userID uuid.UUID) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// ActiveParticipants считает участников, которые ещё занимают место
func (s *LiveSession) ActiveParticipants() int {
	n := 0
	for _, p := range s.Participants {
		if !p.Status.Terminal() {
			n++
		}
	}
	return n
}

// RoleOf возвращает роль пользователя; ведущий всегда HOST, даже без записи участника
func (s *LiveSession) RoleOf(userID uuid.UUID) (ParticipantRole, bool) {
	if userID == s.HostID {
		return RoleHost, true
	}
	p, ok := s.Participant(userID)
	if !ok || p.Status.Terminal() {
		return "", false
	}
	return p.Role, true
}
