package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Поиск по ID возвращает *model.NotFoundError, если записи нет.

type ResourceRepository interface {
	Create(ctx context.Context, resource *model.Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Resource, error)
	// AdjustReserved прибавляет delta к резерву, не давая уйти ниже нуля
	// или выше ёмкости
	AdjustReserved(ctx context.Context, id uuid.UUID, delta int) error
}

type AvailabilityRepository interface {
	Create(ctx context.Context, rule *model.AvailabilityRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AvailabilityRule, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.AvailabilityRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	Update(ctx context.Context, booking *model.Booking) error
	// ListOccupyingByProvider возвращает pending/confirmed бронирования всех ресурсов
	// провайдера, пересекающие [from, to), по возрастанию начала
	ListOccupyingByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error)
	// ListOverdue возвращает подтверждённые бронирования, окно которых закончилось не позже t
	ListOverdue(ctx context.Context, t time.Time) ([]*model.Booking, error)
}

type GroupBookingRepository interface {
	Create(ctx context.Context, group *model.GroupBooking) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.GroupBooking, error)
	// Save сохраняет группу, её выведенный статус и всех участников
	Save(ctx context.Context, group *model.GroupBooking) error
	// ListOpen возвращает неотменённые и не полностью подтверждённые группы
	ListOpen(ctx context.Context) ([]*model.GroupBooking, error)
}

type LiveSessionRepository interface {
	Create(ctx context.Context, session *model.LiveSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.LiveSession, error)
	// Save сохраняет сессию и участников (upsert)
	Save(ctx context.Context, session *model.LiveSession) error
}

type BreakoutRoomRepository interface {
	Create(ctx context.Context, room *model.BreakoutRoom) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.BreakoutRoom, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.BreakoutRoom, error)
	// Save сохраняет комнату, счётчик и назначения вместе
	Save(ctx context.Context, room *model.BreakoutRoom) error
}

// Store объединяет репозитории и даёт атомарный блок по ключу
type Store interface {
	Resources() ResourceRepository
	Availability() AvailabilityRepository
	Bookings() BookingRepository
	Groups() GroupBookingRepository
	Sessions() LiveSessionRepository
	Rooms() BreakoutRoomRepository

	// Atomically выполняет fn одним блоком, сериализованным со всеми блоками
	// с тем же ключом. Репозитории из tx работают внутри блока.
	Atomically(ctx context.Context, key string, fn func(ctx context.Context, tx Store) error) error
}

func ProviderKey(id uuid.UUID) string { return "provider:" + id.String() }
func ResourceKey(id uuid.UUID) string { return "resource:" + id.String() }
func GroupKey(id uuid.UUID) string { return "group:" + id.String() }
func SessionKey(id uuid.UUID) string { return "session:" + id.String() }

// PgStore хранилище на PostgreSQL. Вне Atomically работает через пул,
// внутри через транзакцию.
type PgStore struct {
	pool *pgxpool.Pool
	db   base.DBTX
	tx   pgx.Tx
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Resources() ResourceRepository { return NewResourceRepository(s.db) }
func (s *PgStore) Availability() AvailabilityRepository { return NewAvailabilityRepository(s.db) }
func (s *PgStore) Bookings() BookingRepository { return NewBookingRepository(s.db) }
func (s *PgStore) Groups() GroupBookingRepository { return NewGroupBookingRepository(s.db) }
func (s *PgStore) Sessions() LiveSessionRepository { return NewLiveSessionRepository(s.db) }
func (s *PgStore) Rooms() BreakoutRoomRepository { return NewBreakoutRoomRepository(s.db) }

// Atomically берёт advisory-блокировку на ключ до конца транзакции,
// все процессы с общей базой сериализуются на одном ключе.
func (s *PgStore) Atomically(ctx context.Context, key string, fn func(ctx context.Context, tx Store) error) error {
	if s.tx != nil {
		if err := advisoryLock(ctx, s.tx, key); err != nil {
			return err
		}
		return fn(ctx, s)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := advisoryLock(ctx, tx, key); err != nil {
			return err
		}
		return fn(ctx, &PgStore{pool: s.pool, db: tx, tx: tx})
	})
}

func advisoryLock(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return nil
}
