package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHourLeft(t *testing.T) {
	hour := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var tests = []struct {
		name     string
		now      time.Time
		expected float64
	}{
		{name: "start of hour", now: hour, expected: 1},
		{name: "quarter to", now: hour.Add(45 * time.Minute), expected: 0.25},
		{name: "hour passed", now: hour.Add(2 * time.Hour), expected: 0},
		{name: "future hour", now: hour.Add(-3 * time.Hour), expected: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, HourLeft(tt.now, hour.Unix()), 1e-9)
		})
	}
}

func TestFixed(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewFixed(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Hour), c.Add(time.Hour))
	c.Set(start)
	assert.Equal(t, start, c.Now())
}
