package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupReminder рассылает напоминания по открытым групповым бронированиям
type GroupReminder interface {
	ListOpenGroups(ctx context.Context) ([]*model.GroupBooking, error)
	SendReminders(ctx context.Context, groupID uuid.UUID) (int, error)
}

// OverdueLister находит подтверждённые бронирования с закончившимся окном
type OverdueLister interface {
	ListOverdueBookings(ctx context.Context) ([]*model.Booking, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	groups           GroupReminder
	bookings         OverdueLister
	reminderInterval time.Duration
	sweepInterval    time.Duration
	logger           *zap.Logger
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(groups GroupReminder, bookings OverdueLister, reminderInterval, sweepInterval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		groups:           groups,
		bookings:         bookings,
		reminderInterval: reminderInterval,
		sweepInterval:    sweepInterval,
		logger:           logger,
		stopChan:         make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("reminder_interval", s.reminderInterval),
		zap.Duration("sweep_interval", s.sweepInterval),
	)

	s.wg.Add(2)
	go s.every(ctx, "group reminders", s.reminderInterval, s.sendReminders)
	go s.every(ctx, "overdue sweep", s.sweepInterval, s.sweepOverdue)
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// every запускает task сразу и затем раз в interval
func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, task func(ctx context.Context)) {
	defer s.wg.Done()

	task(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task(ctx)
		case <-s.stopChan:
			s.logger.Info("Background task stopped", zap.String("task", name))
			return
		case <-ctx.Done():
			s.logger.Info("Background task cancelled", zap.String("task", name))
			return
		}
	}
}

// sendReminders напоминает неответившим участникам всех открытых групп
func (s *Scheduler) sendReminders(ctx context.Context) {
	groups, err := s.groups.ListOpenGroups(ctx)
	if err != nil {
		s.logger.Error("Failed to list open groups", zap.Error(err))
		return
	}

	reminded := 0
	for _, g := range groups {
		n, err := s.groups.SendReminders(ctx, g.ID)
		if err != nil {
			s.logger.Error("Failed to send group reminders", zap.Stringer("group_id", g.ID), zap.Error(err))
			continue
		}
		reminded += n
	}

	s.logger.Info("Group reminders completed",
		zap.Int("groups", len(groups)),
		zap.Int("reminded", reminded),
	)
}

// sweepOverdue только сообщает о бронированиях, ждущих отметки; статусы не меняются
func (s *Scheduler) sweepOverdue(ctx context.Context) {
	overdue, err := s.bookings.ListOverdueBookings(ctx)
	if err != nil {
		s.logger.Error("Failed to list overdue bookings", zap.Error(err))
		return
	}

	for _, b := range overdue {
		s.logger.Warn("Booking awaits completion",
			zap.Stringer("booking_id", b.ID),
			zap.Stringer("resource", b.Resource),
			zap.Time("ended_at", b.Window.End),
		)
	}

	s.logger.Info("Overdue sweep completed", zap.Int("overdue", len(overdue)))
}
