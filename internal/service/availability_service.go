package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/Freeeeeet/booking_engine/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AvailabilityService struct {
	store  repository.Store
	logger *zap.Logger
	now    clock
}

func NewAvailabilityService(store repository.Store, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateRule создаёт правило доступности провайдера
func (s *AvailabilityService) CreateRule(ctx context.Context, providerID uuid.UUID, weekdays []time.Weekday, startMinute, endMinute int, timezone string) (*model.AvailabilityRule, error) {
	rule := &model.AvailabilityRule{
		ID:          uuid.New(),
		ProviderID:  providerID,
		Weekdays:    slices.Compact(slices.Sorted(slices.Values(weekdays))),
		StartMinute: startMinute,
		EndMinute:   endMinute,
		Timezone:    timezone,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Availability().Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create availability rule: %w", err)
	}

	s.logger.Info("Availability rule created",
		zap.Stringer("rule_id", rule.ID),
		zap.Stringer("provider_id", providerID),
		zap.Int("start_minute", startMinute),
		zap.Int("end_minute", endMinute),
		zap.String("timezone", timezone),
	)

	return rule, nil
}

// ListRules возвращает все правила провайдера
func (s *AvailabilityService) ListRules(ctx context.Context, providerID uuid.UUID) ([]*model.AvailabilityRule, error) {
	return s.store.Availability().ListByProvider(ctx, providerID)
}

// DeleteRule удаляет правило; удалять может только владелец
func (s *AvailabilityService) DeleteRule(ctx context.Context, providerID, ruleID uuid.UUID) error {
	rule, err := s.store.Availability().GetByID(ctx, ruleID)
	if err != nil {
		return err
	}

	if rule.ProviderID != providerID {
		return &model.PermissionDeniedError{Actor: providerID.String(), Action: "delete availability rule " + ruleID.String()}
	}

	if err := s.store.Availability().Delete(ctx, ruleID); err != nil {
		return err
	}

	s.logger.Info("Availability rule deleted",
		zap.Stringer("rule_id", ruleID),
		zap.Stringer("provider_id", providerID),
	)

	return nil
}

// ListAvailableSlots возвращает свободные слоты ресурса на дату.
// Занятость считается по всем ресурсам провайдера. У заполненного ресурса слотов нет.
// Результат - снимок, а не резерв: CreateBooking проверяет всё заново.
func (s *AvailabilityService) ListAvailableSlots(ctx context.Context, resourceID uuid.UUID, date time.Time, duration, step time.Duration) ([]model.TimeWindow, error) {
	resource, err := s.store.Resources().GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	rules, err := s.store.Availability().ListByProvider(ctx, resource.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}

	candidates, err := schedule.Resolve(rules, date, duration, step)
	if err != nil {
		return nil, err
	}

	if resource.Remaining() == 0 {
		s.logger.Debug("Resource is full, no slots",
			zap.Stringer("resource_id", resourceID),
			zap.Int("capacity", resource.Capacity),
		)
		return nil, nil
	}

	windows, err := schedule.DayWindows(rules, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	occupying, err := s.store.Bookings().ListOccupyingByProvider(ctx, resource.ProviderID, windows[0].Start, windows[len(windows)-1].End)
	if err != nil {
		return nil, fmt.Errorf("list occupying bookings: %w", err)
	}

	free := slices.Collect(schedule.Filter(candidates, schedule.OccupiedWindows(occupying), s.now()))

	s.logger.Debug("Resolved available slots",
		zap.Stringer("resource_id", resourceID),
		zap.Time("date", date),
		zap.Duration("duration", duration),
		zap.Int("free", len(free)),
		zap.Int("occupied", len(occupying)),
	)

	return free, nil
}
