package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityRuleValidate(t *testing.T) {
	valid := AvailabilityRule{Weekdays: []time.Weekday{time.Monday}, StartMinute: 540, EndMinute: 1020}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(r *AvailabilityRule)
	}{
		{"no weekdays", func(r *AvailabilityRule) { r.Weekdays = nil }},
		{"weekday out of range", func(r *AvailabilityRule) { r.Weekdays = []time.Weekday{7} }},
		{"empty range", func(r *AvailabilityRule) { r.EndMinute = r.StartMinute }},
		{"past midnight", func(r *AvailabilityRule) { r.EndMinute = 1441 }},
		{"unknown timezone", func(r *AvailabilityRule) { r.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.modify(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidArgument)
		})
	}
}

func TestAvailabilityRuleWindowOn(t *testing.T) {
	rule := AvailabilityRule{
		Weekdays:    []time.Weekday{time.Wednesday},
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		Timezone:    "Europe/Berlin",
	}

	w, ok, err := rule.WindowOn(2030, time.January, 16)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2030, 1, 16, 8, 0, 0, 0, time.UTC), w.Start.UTC())
	assert.Equal(t, 8*time.Hour, w.Duration())

	_, ok, err = rule.WindowOn(2030, time.January, 17)
	require.NoError(t, err)
	assert.False(t, ok)
}
