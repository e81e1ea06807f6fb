// Package schedule превращает правила доступности в слоты для бронирования.
// Без хранилища и без чтения часов.
package schedule

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

// Resolve выдаёт окна длины duration с шагом step внутри объединения правил
// на календарный день date. Каждое правило читается в своём часовом поясе.
// step <= 0 означает step = duration.
//
// Последовательность можно обходить повторно, порядок хронологический.
func Resolve(rules []*model.AvailabilityRule, date time.Time, duration, step time.Duration) (iter.Seq[model.TimeWindow], error) {
	if duration <= 0 {
		return nil, model.InvalidArgument("slot duration must be positive, got %s", duration)
	}
	if step <= 0 {
		step = duration
	}

	windows, err := DayWindows(rules, date)
	if err != nil {
		return nil, err
	}

	return func(yield func(model.TimeWindow) bool) {
		for _, w := range windows {
			for start := w.Start; !start.Add(duration).After(w.End); start = start.Add(step) {
				if !yield(model.TimeWindow{Start: start, End: start.Add(duration)}) {
					return
				}
			}
		}
	}, nil
}

// DayWindows возвращает объединённую доступность правил на день date.
// Пересекающиеся и соприкасающиеся окна склеиваются.
func DayWindows(rules []*model.AvailabilityRule, date time.Time) ([]model.TimeWindow, error) {
	var windows []model.TimeWindow
	for _, rule := range rules {
		w, ok, err := rule.WindowOn(date.Year(), date.Month(), date.Day())
		if err != nil {
			return nil, fmt.Errorf("resolve rule %s: %w", rule.ID, err)
		}
		if ok {
			windows = append(windows, w)
		}
	}
	return Merge(windows), nil
}

// Merge сортирует окна по началу и склеивает пересекающиеся и соприкасающиеся
func Merge(windows []model.TimeWindow) []model.TimeWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := slices.Clone(windows)
	slices.SortFunc(sorted, func(a, b model.TimeWindow) int {
		return a.Start.Compare(b.Start)
	})

	merged := []model.TimeWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}
