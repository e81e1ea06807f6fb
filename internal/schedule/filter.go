package schedule

import (
	"iter"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

// Filter отбрасывает кандидатов, пересекающих занятые окна или начинающихся не позже now.
// Порядок сохраняется. Результат - снимок доступности, а не резерв.
func Filter(candidates iter.Seq[model.TimeWindow], occupied []model.TimeWindow, now time.Time) iter.Seq[model.TimeWindow] {
	return func(yield func(model.TimeWindow) bool) {
		for slot := range candidates {
			if !slot.Start.After(now) {
				continue
			}
			if conflicts(slot, occupied) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// OccupiedWindows возвращает окна бронирований, которые держат ёмкость
func OccupiedWindows(bookings []*model.Booking) []model.TimeWindow {
	windows := make([]model.TimeWindow, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.Occupying() {
			windows = append(windows, b.Window)
		}
	}
	return windows
}

// FirstConflict возвращает первое занимающее бронирование, пересекающее w
func FirstConflict(w model.TimeWindow, bookings []*model.Booking) (*model.Booking, bool) {
	for _, b := range bookings {
		if b.Status.Occupying() && model.Overlaps(w, b.Window) {
			return b, true
		}
	}
	return nil, false
}

func conflicts(slot model.TimeWindow, occupied []model.TimeWindow) bool {
	for _, o := range occupied {
		if model.Overlaps(slot, o) {
			return true
		}
	}
	return false
}
