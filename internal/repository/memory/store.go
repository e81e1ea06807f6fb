// Package memory хранилище repository.Store в памяти процесса.
// Атомарные блоки сериализуются блокировкой по ключу и откатываются при ошибке,
// как транзакции в PostgreSQL.
package memory

import (
	"context"
	"sync"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]*model.Resource
	rules     map[uuid.UUID]*model.AvailabilityRule
	bookings  map[uuid.UUID]*model.Booking
	groups    map[uuid.UUID]*model.GroupBooking
	sessions  map[uuid.UUID]*model.LiveSession
	rooms     map[uuid.UUID]*model.BreakoutRoom

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		resources: make(map[uuid.UUID]*model.Resource),
		rules:     make(map[uuid.UUID]*model.AvailabilityRule),
		bookings:  make(map[uuid.UUID]*model.Booking),
		groups:    make(map[uuid.UUID]*model.GroupBooking),
		sessions:  make(map[uuid.UUID]*model.LiveSession),
		rooms:     make(map[uuid.UUID]*model.BreakoutRoom),
		locks:     make(map[string]chan struct{}),
	}
}

func (s *Store) Resources() repository.ResourceRepository { return &resourceRepo{s: s} }
func (s *Store) Availability() repository.AvailabilityRepository { return &ruleRepo{s: s} }
func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{s: s} }
func (s *Store) Groups() repository.GroupBookingRepository { return &groupRepo{s: s} }
func (s *Store) Sessions() repository.LiveSessionRepository { return &sessionRepo{s: s} }
func (s *Store) Rooms() repository.BreakoutRoomRepository { return &roomRepo{s: s} }

func (s *Store) Atomically(ctx context.Context, key string, fn func(ctx context.Context, tx repository.Store) error) error {
	u := &unit{store: s, held: make(map[string]bool)}
	return u.Atomically(ctx, key, fn)
}

// lock ждёт, пока ключ освободится или ctx будет отменён
func (s *Store) lock(ctx context.Context, key string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// unit - Store внутри атомарного блока. Каждая запись через него сохраняет шаг отката,
// при ошибке fn шаги выполняются в обратном порядке.
type unit struct {
	store *Store
	undo  []func()
	held  map[string]bool
}

func (u *unit) Resources() repository.ResourceRepository { return &resourceRepo{s: u.store, u: u} }
func (u *unit) Availability() repository.AvailabilityRepository { return &ruleRepo{s: u.store, u: u} }
func (u *unit) Bookings() repository.BookingRepository { return &bookingRepo{s: u.store, u: u} }
func (u *unit) Groups() repository.GroupBookingRepository { return &groupRepo{s: u.store, u: u} }
func (u *unit) Sessions() repository.LiveSessionRepository { return &sessionRepo{s: u.store, u: u} }
func (u *unit) Rooms() repository.BreakoutRoomRepository { return &roomRepo{s: u.store, u: u} }

// Atomically внутри блока не берёт повторно уже захваченные ключи
func (u *unit) Atomically(ctx context.Context, key string, fn func(ctx context.Context, tx repository.Store) error) error {
	if !u.held[key] {
		unlock, err := u.store.lock(ctx, key)
		if err != nil {
			return err
		}
		defer unlock()
		u.held[key] = true
		defer delete(u.held, key)
	}

	mark := len(u.undo)
	if err := fn(ctx, u); err != nil {
		u.rollback(mark)
		return err
	}
	return nil
}

func (u *unit) rollback(mark int) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := len(u.undo) - 1; i >= mark; i-- {
		u.undo[i]()
	}
	u.undo = u.undo[:mark]
}

// put сохраняет val под id и внутри блока запоминает откат.
// Вызывающий держит s.mu на запись.
func put[T any](u *unit, m map[uuid.UUID]*T, id uuid.UUID, val *T) {
	prev, had := m[id]
	m[id] = val
	if u == nil {
		return
	}
	u.undo = append(u.undo, func() {
		if had {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

func remove[T any](u *unit, m map[uuid.UUID]*T, id uuid.UUID) {
	prev, had := m[id]
	if !had {
		return
	}
	delete(m, id)
	if u != nil {
		u.undo = append(u.undo, func() { m[id] = prev })
	}
}
