package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
)

// Чтение возвращает копию, запись сохраняет копию: вызывающий код не делит состояние с хранилищем.

type resourceRepo struct {
	s *Store
	u *unit
}

func (r *resourceRepo) Create(_ context.Context, resource *model.Resource) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = time.Now()
	}
	c := *resource
	put(r.u, r.s.resources, c.ID, &c)
	return nil
}

func (r *resourceRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Resource, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	resource, ok := r.s.resources[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "resource", ID: id.String()}
	}
	c := *resource
	return &c, nil
}

func (r *resourceRepo) AdjustReserved(_ context.Context, id uuid.UUID, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	resource, ok := r.s.resources[id]
	if !ok {
		return &model.NotFoundError{Entity: "resource", ID: id.String()}
	}
	next := resource.Reserved + delta
	if next < 0 || next > resource.Capacity {
		return &model.CapacityExceededError{
			Entity:    "resource",
			ID:        id.String(),
			Capacity:  resource.Capacity,
			Reserved:  resource.Reserved,
			Requested: delta,
		}
	}
	c := *resource
	c.Reserved = next
	put(r.u, r.s.resources, id, &c)
	return nil
}

type ruleRepo struct {
	s *Store
	u *unit
}

func cloneRule(rule *model.AvailabilityRule) *model.AvailabilityRule {
	c := *rule
	c.Weekdays = slices.Clone(rule.Weekdays)
	return &c
}

func (r *ruleRepo) Create(_ context.Context, rule *model.AvailabilityRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	put(r.u, r.s.rules, rule.ID, cloneRule(rule))
	return nil
}

func (r *ruleRepo) GetByID(_ context.Context, id uuid.UUID) (*model.AvailabilityRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "availability rule", ID: id.String()}
	}
	return cloneRule(rule), nil
}

func (r *ruleRepo) ListByProvider(_ context.Context, providerID uuid.UUID) ([]*model.AvailabilityRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var rules []*model.AvailabilityRule
	for _, rule := range r.s.rules {
		if rule.ProviderID == providerID {
			rules = append(rules, cloneRule(rule))
		}
	}
	slices.SortFunc(rules, func(a, b *model.AvailabilityRule) int {
		return cmp.Or(cmp.Compare(a.StartMinute, b.StartMinute), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return rules, nil
}

func (r *ruleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[id]; !ok {
		return &model.NotFoundError{Entity: "availability rule", ID: id.String()}
	}
	remove(r.u, r.s.rules, id)
	return nil
}

type bookingRepo struct {
	s *Store
	u *unit
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	c.Metadata = maps.Clone(b.Metadata)
	return &c
}

func (r *bookingRepo) Create(_ context.Context, booking *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}
	put(r.u, r.s.bookings, booking.ID, cloneBooking(booking))
	return nil
}

func (r *bookingRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "booking", ID: id.String()}
	}
	return cloneBooking(b), nil
}

func (r *bookingRepo) Update(_ context.Context, booking *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return &model.NotFoundError{Entity: "booking", ID: booking.ID.String()}
	}
	c := cloneBooking(stored)
	c.Status = booking.Status
	c.PaymentStatus = booking.PaymentStatus
	c.Notes = booking.Notes
	c.Metadata = maps.Clone(booking.Metadata)
	c.CancelledBy = booking.CancelledBy
	c.UpdatedAt = booking.UpdatedAt
	put(r.u, r.s.bookings, c.ID, c)
	return nil
}

func (r *bookingRepo) ListOccupyingByProvider(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Booking, error) {
	span := model.TimeWindow{Start: from, End: to}
	return r.filter(func(b *model.Booking) bool {
		resource, ok := r.s.resources[b.Resource.ID]
		return ok && resource.ProviderID == providerID && b.Status.Occupying() && model.Overlaps(b.Window, span)
	}, byStart), nil
}

func (r *bookingRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool {
		return b.UserID == userID
	}, func(a, b *model.Booking) int { return byStart(b, a) }), nil
}

func (r *bookingRepo) ListOverdue(_ context.Context, t time.Time) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool {
		return b.Status == model.BookingStatusConfirmed && !b.Window.End.After(t)
	}, func(a, b *model.Booking) int { return a.Window.End.Compare(b.Window.End) }), nil
}

func (r *bookingRepo) filter(keep func(*model.Booking) bool, order func(a, b *model.Booking) int) []*model.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	slices.SortFunc(out, order)
	return out
}

func byStart(a, b *model.Booking) int {
	return cmp.Or(a.Window.Start.Compare(b.Window.Start), cmp.Compare(a.ID.String(), b.ID.String()))
}

type groupRepo struct {
	s *Store
	u *unit
}

func cloneGroup(g *model.GroupBooking) *model.GroupBooking {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}

func (r *groupRepo) Create(_ context.Context, group *model.GroupBooking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	if group.UpdatedAt.IsZero() {
		group.UpdatedAt = group.CreatedAt
	}
	put(r.u, r.s.groups, group.ID, cloneGroup(group))
	return nil
}

func (r *groupRepo) GetByID(_ context.Context, id uuid.UUID) (*model.GroupBooking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "group booking", ID: id.String()}
	}
	return cloneGroup(g), nil
}

func (r *groupRepo) Save(_ context.Context, group *model.GroupBooking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.groups[group.ID]; !ok {
		return &model.NotFoundError{Entity: "group booking", ID: group.ID.String()}
	}
	put(r.u, r.s.groups, group.ID, cloneGroup(group))
	return nil
}

func (r *groupRepo) ListOpen(_ context.Context) ([]*model.GroupBooking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.GroupBooking
	for _, g := range r.s.groups {
		if status := g.Status(); status == model.GroupStatusPending || status == model.GroupStatusPartial {
			out = append(out, cloneGroup(g))
		}
	}
	slices.SortFunc(out, func(a, b *model.GroupBooking) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

type sessionRepo struct {
	s *Store
	u *unit
}

func cloneSession(s *model.LiveSession) *model.LiveSession {
	c := *s
	c.Participants = slices.Clone(s.Participants)
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

func (r *sessionRepo) Create(_ context.Context, session *model.LiveSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	put(r.u, r.s.sessions, session.ID, cloneSession(session))
	return nil
}

func (r *sessionRepo) GetByID(_ context.Context, id uuid.UUID) (*model.LiveSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "live session", ID: id.String()}
	}
	return cloneSession(s), nil
}

func (r *sessionRepo) Save(_ context.Context, session *model.LiveSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[session.ID]; !ok {
		return &model.NotFoundError{Entity: "live session", ID: session.ID.String()}
	}
	put(r.u, r.s.sessions, session.ID, cloneSession(session))
	return nil
}

type roomRepo struct {
	s *Store
	u *unit
}

func cloneRoom(room *model.BreakoutRoom) *model.BreakoutRoom {
	c := *room
	c.Assignments = slices.Clone(room.Assignments)
	return &c
}

func (r *roomRepo) Create(_ context.Context, room *model.BreakoutRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	put(r.u, r.s.rooms, room.ID, cloneRoom(room))
	return nil
}

func (r *roomRepo) GetByID(_ context.Context, id uuid.UUID) (*model.BreakoutRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "breakout room", ID: id.String()}
	}
	return cloneRoom(room), nil
}

func (r *roomRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*model.BreakoutRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.BreakoutRoom
	for _, room := range r.s.rooms {
		if room.SessionID == sessionID {
			out = append(out, cloneRoom(room))
		}
	}
	slices.SortFunc(out, func(a, b *model.BreakoutRoom) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (r *roomRepo) Save(_ context.Context, room *model.BreakoutRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[room.ID]; !ok {
		return &model.NotFoundError{Entity: "breakout room", ID: room.ID.String()}
	}
	put(r.u, r.s.rooms, room.ID, cloneRoom(room))
	return nil
}
