package model

import (
	"errors"
	"fmt"
)

// Ошибки для errors.Is. Каждая типизированная ошибка ниже соответствует ровно одной из них.
var (
	ErrSlotConflict           = errors.New("slot conflict")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrFeatureDisabled        = errors.New("feature disabled")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// SlotConflictError: запрошенное окно пересекается с занимающим бронированием
type SlotConflictError struct {
	ResourceID    string
	Window        TimeWindow
	ConflictsWith string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot conflict on resource %s: [%s, %s) overlaps booking %s",
		e.ResourceID, e.Window.Start.Format("2006-01-02 15:04"), e.Window.End.Format("15:04"), e.ConflictsWith)
}

func (e *SlotConflictError) Is(target error) bool { return target == ErrSlotConflict }

// CapacityExceededError: резерв ещё Requested мест превысил бы Capacity
type CapacityExceededError struct {
	Entity    string
	ID        string
	Capacity  int
	Reserved  int
	Requested int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded on %s %s: capacity %d, reserved %d, requested %d",
		e.Entity, e.ID, e.Capacity, e.Reserved, e.Requested)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

type FeatureDisabledError struct {
	Feature  string
	ParentID string
}

func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("feature %q is disabled on %s", e.Feature, e.ParentID)
}

func (e *FeatureDisabledError) Is(target error) bool { return target == ErrFeatureDisabled }

type PermissionDeniedError struct {
	Actor  string
	Action string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s may not %s", e.Actor, e.Action)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidArgument оборачивает ErrInvalidArgument с сообщением
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
