package model

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityRule недельный шаблон доступности провайдера.
// Правила одного провайдера могут пересекаться, при разрешении берётся объединение.
type AvailabilityRule struct {
	ID          uuid.UUID      `json:"id"`
	ProviderID  uuid.UUID      `json:"provider_id"`
	Weekdays    []time.Weekday `json:"weekdays"`     // 0 = воскресенье, 6 = суббота
	StartMinute int            `json:"start_minute"` // минуты от локальной полуночи
	EndMinute   int            `json:"end_minute"`   // не включительно, до 24*60
	Timezone    string         `json:"timezone"`     // имя IANA, "" = UTC
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

const minutesPerDay = 24 * 60

// Validate проверяет корректность правила
func (r *AvailabilityRule) Validate() error {
	if len(r.Weekdays) == 0 {
		return InvalidArgument("availability rule needs at least one weekday")
	}
	for _, d := range r.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return InvalidArgument("weekday %d out of range", d)
		}
	}
	if r.StartMinute < 0 || r.EndMinute > minutesPerDay || r.StartMinute >= r.EndMinute {
		return InvalidArgument("availability %d-%d is not a valid daily range", r.StartMinute, r.EndMinute)
	}
	if _, err := r.Location(); err != nil {
		return InvalidArgument("unknown timezone %q", r.Timezone)
	}
	return nil
}

func (r *AvailabilityRule) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(r.Timezone)
}

func (r *AvailabilityRule) AppliesOn(day time.Weekday) bool {
	for _, d := range r.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// WindowOn возвращает окно правила на календарную дату в часовом поясе правила.
// false, если правило не действует в этот день недели.
func (r *AvailabilityRule) WindowOn(year int, month time.Month, day int) (TimeWindow, bool, error) {
	loc, err := r.Location()
	if err != nil {
		return TimeWindow{}, false, err
	}
	midnight := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if !r.AppliesOn(midnight.Weekday()) {
		return TimeWindow{}, false, nil
	}
	start := time.Date(year, month, day, r.StartMinute/60, r.StartMinute%60, 0, 0, loc)
	end := time.Date(year, month, day, r.EndMinute/60, r.EndMinute%60, 0, 0, loc)
	return TimeWindow{Start: start, End: end}, true, nil
}
