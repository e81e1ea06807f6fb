package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GroupBookingService struct {
	store  repository.Store
	events postCommit
	logger *zap.Logger
	now    clock
}

func NewGroupBookingService(store repository.Store, notifier Notifier, logger *zap.Logger) *GroupBookingService {
	return &GroupBookingService{
		store:  store,
		events: postCommit{notifier: notifier, logger: logger},
		logger: logger,
		now:    time.Now,
	}
}

// CreateGroup создаёт групповое бронирование на ресурс
func (s *GroupBookingService) CreateGroup(ctx context.Context, ownerID, resourceID uuid.UUID, capacity int) (*model.GroupBooking, error) {
	if ownerID == uuid.Nil {
		return nil, model.InvalidArgument("owner is required")
	}
	if capacity < 1 {
		return nil, model.InvalidArgument("group capacity must be positive, got %d", capacity)
	}

	resource, err := s.store.Resources().GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	group := &model.GroupBooking{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Resource:  resource.Ref(),
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Groups().Create(ctx, group); err != nil {
		return nil, fmt.Errorf("create group booking: %w", err)
	}

	s.logger.Info("Group booking created",
		zap.Stringer("group_id", group.ID),
		zap.Stringer("owner_id", ownerID),
		zap.Stringer("resource", group.Resource),
		zap.Int("capacity", capacity),
	)

	return group, nil
}

// GetGroup возвращает групповое бронирование по ID
func (s *GroupBookingService) GetGroup(ctx context.Context, id uuid.UUID) (*model.GroupBooking, error) {
	return s.store.Groups().GetByID(ctx, id)
}

// ListOpenGroups возвращает группы, ещё не подтверждённые полностью
func (s *GroupBookingService) ListOpenGroups(ctx context.Context) ([]*model.GroupBooking, error) {
	groups, err := s.store.Groups().ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open groups: %w", err)
	}
	return groups, nil
}

// AddMember добавляет участника в статусе PENDING.
// Если пользователь уже в группе, возвращается существующий участник.
func (s *GroupBookingService) AddMember(ctx context.Context, groupID, userID uuid.UUID, paymentShare int64) (*model.Member, error) {
	if userID == uuid.Nil {
		return nil, model.InvalidArgument("user is required")
	}
	if paymentShare < 0 {
		return nil, model.InvalidArgument("payment share must not be negative")
	}

	var (
		member  model.Member
		existed bool
		before  model.GroupStatus
		group   *model.GroupBooking
	)
	err := s.store.Atomically(ctx, repository.GroupKey(groupID), func(ctx context.Context, tx repository.Store) error {
		var err error
		if group, err = tx.Groups().GetByID(ctx, groupID); err != nil {
			return err
		}
		if group.Cancelled {
			return &model.InvalidStateTransitionError{
				Entity: "group booking",
				From:   string(model.GroupStatusCancelled),
				To:     string(model.GroupStatusCancelled),
				Reason: "cannot add members to a cancelled group",
			}
		}

		if m, ok := group.MemberByUser(userID); ok {
			member, existed = *m, true
			return nil
		}

		if group.ActiveCount()+1 > group.Capacity {
			return &model.CapacityExceededError{
				Entity:    "group booking",
				ID:        group.ID.String(),
				Capacity:  group.Capacity,
				Reserved:  group.ActiveCount(),
				Requested: 1,
			}
		}

		before = group.Status()
		now := s.now()
		member = model.Member{
			ID:           uuid.New(),
			UserID:       userID,
			Status:       model.MemberStatusPending,
			PaymentShare: paymentShare,
			JoinedAt:     now,
		}
		group.Members = append(group.Members, member)
		group.UpdatedAt = now

		if err := tx.Groups().Save(ctx, group); err != nil {
			return fmt.Errorf("save group booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existed {
		return &member, nil
	}

	s.logger.Info("Group member added",
		zap.Stringer("group_id", groupID),
		zap.Stringer("member_id", member.ID),
		zap.Stringer("user_id", userID),
		zap.Int("active", group.ActiveCount()),
		zap.Int("capacity", group.Capacity),
	)

	s.notifyStatusChange(ctx, group, before)

	return &member, nil
}

// SetMemberStatus меняет статус участника и пересчитывает статус группы.
// Менять статус может сам участник или владелец группы.
func (s *GroupBookingService) SetMemberStatus(ctx context.Context, groupID, memberID, actor uuid.UUID, status model.MemberStatus) (*model.GroupBooking, error) {
	if !status.Valid() {
		return nil, model.InvalidArgument("unknown member status %q", status)
	}

	var (
		group  *model.GroupBooking
		before model.GroupStatus
		from   model.MemberStatus
	)
	err := s.store.Atomically(ctx, repository.GroupKey(groupID), func(ctx context.Context, tx repository.Store) error {
		var err error
		if group, err = tx.Groups().GetByID(ctx, groupID); err != nil {
			return err
		}

		member, ok := group.Member(memberID)
		if !ok {
			return &model.NotFoundError{Entity: "group member", ID: memberID.String()}
		}
		if actor != member.UserID && actor != group.OwnerID {
			return &model.PermissionDeniedError{Actor: actor.String(), Action: "change status of member " + memberID.String()}
		}
		if group.Cancelled {
			return &model.InvalidStateTransitionError{
				Entity: "group member",
				From:   string(member.Status),
				To:     string(status),
				Reason: "group is cancelled",
			}
		}

		from = member.Status
		if !from.CanTransitionTo(status) {
			return &model.InvalidStateTransitionError{Entity: "group member", From: string(from), To: string(status)}
		}

		// Вернувшийся из DECLINED снова занимает место в группе
		if from == model.MemberStatusDeclined && group.ActiveCount()+1 > group.Capacity {
			return &model.CapacityExceededError{
				Entity:    "group booking",
				ID:        group.ID.String(),
				Capacity:  group.Capacity,
				Reserved:  group.ActiveCount(),
				Requested: 1,
			}
		}

		before = group.Status()
		now := s.now()
		member.Status = status
		member.RespondedAt = &now
		group.UpdatedAt = now

		if err := tx.Groups().Save(ctx, group); err != nil {
			return fmt.Errorf("save group booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Group member status changed",
		zap.Stringer("group_id", groupID),
		zap.Stringer("member_id", memberID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.String("group_status", string(group.Status())),
		zap.Float64("progress", group.Progress()),
	)

	s.notifyStatusChange(ctx, group, before)

	return group, nil
}

// CancelGroup отменяет группу и освобождает все места. Повторная отмена ничего не делает.
func (s *GroupBookingService) CancelGroup(ctx context.Context, groupID, actor uuid.UUID) (*model.GroupBooking, error) {
	var (
		group            *model.GroupBooking
		alreadyCancelled bool
	)
	err := s.store.Atomically(ctx, repository.GroupKey(groupID), func(ctx context.Context, tx repository.Store) error {
		var err error
		if group, err = tx.Groups().GetByID(ctx, groupID); err != nil {
			return err
		}
		if actor != group.OwnerID {
			return &model.PermissionDeniedError{Actor: actor.String(), Action: "cancel group booking " + groupID.String()}
		}
		if group.Cancelled {
			alreadyCancelled = true
			return nil
		}

		group.Cancelled = true
		group.UpdatedAt = s.now()
		if err := tx.Groups().Save(ctx, group); err != nil {
			return fmt.Errorf("save group booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyCancelled {
		return group, nil
	}

	s.logger.Info("Group booking cancelled",
		zap.Stringer("group_id", groupID),
		zap.Int("members", len(group.Members)),
	)

	s.events.notify(ctx, EventGroupCancelled, groupRecipients(group), groupPayload(group))

	return group, nil
}

// SendReminders напоминает участникам, которые ещё не ответили.
// Состояние группы не меняется. Возвращает число адресатов.
func (s *GroupBookingService) SendReminders(ctx context.Context, groupID uuid.UUID) (int, error) {
	group, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return 0, err
	}
	if group.Cancelled {
		return 0, nil
	}

	pending := group.PendingUserIDs()
	if len(pending) == 0 {
		return 0, nil
	}

	s.events.notify(ctx, EventGroupReminder, pending, groupPayload(group))

	s.logger.Debug("Group reminders sent",
		zap.Stringer("group_id", groupID),
		zap.Int("recipients", len(pending)),
	)

	return len(pending), nil
}

func (s *GroupBookingService) notifyStatusChange(ctx context.Context, group *model.GroupBooking, before model.GroupStatus) {
	if group.Status() == before {
		return
	}
	payload := groupPayload(group)
	payload["previous_status"] = string(before)
	s.events.notify(ctx, EventGroupStatusChanged, groupRecipients(group), payload)
}

// groupRecipients: владелец и все участники, кроме отказавшихся
func groupRecipients(g *model.GroupBooking) []uuid.UUID {
	ids := []uuid.UUID{g.OwnerID}
	for _, m := range g.Members {
		if m.Status != model.MemberStatusDeclined && m.UserID != g.OwnerID {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

func groupPayload(g *model.GroupBooking) map[string]any {
	return map[string]any{
		"group_id":  g.ID.String(),
		"resource":  g.Resource.String(),
		"status":    string(g.Status()),
		"confirmed": g.ConfirmedCount(),
		"active":    g.ActiveCount(),
		"progress":  g.Progress(),
	}
}
