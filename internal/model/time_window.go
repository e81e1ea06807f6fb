package model

import (
	"errors"
	"time"
)

// ErrInvalidWindow возвращается, если не выполняется start < end
var ErrInvalidWindow = errors.New("invalid time window: start must be before end")

// TimeWindow полуоткрытый интервал [Start, End)
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow проверяет start < end
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, ErrInvalidWindow
	}
	return TimeWindow{Start: start, End: end}, nil
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return Overlaps(w, other)
}

// Contains: other целиком внутри w
func (w TimeWindow) Contains(other TimeWindow) bool {
	return !other.Start.Before(w.Start) && !other.End.After(w.End)
}

func (w TimeWindow) Equal(other TimeWindow) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

// Overlaps проверяет пересечение двух полуоткрытых окон.
// Окна, касающиеся только границей, не пересекаются.
func Overlaps(a, b TimeWindow) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// RemainingCapacity возвращает max-reserved, не меньше нуля.
// Резерв сверх остатка отклоняет вызывающий код.
func RemainingCapacity(max, reserved int) int {
	if reserved >= max {
		return 0
	}
	return max - reserved
}
