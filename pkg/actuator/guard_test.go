package actuator

import (
	"testing"
	"time"

	"github.com/nergy-se/energymanager/pkg/alarm"
	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func reading(battery, grid float64) *device.PowerReading {
	return &device.PowerReading{BatteryKW: battery, GridKW: grid, Time: t0}
}

func TestResolveActiveDischarge(t *testing.T) {
	tests := []struct {
		name     string
		reading  *device.PowerReading
		expected device.Mode
	}{
		{
			name:     "no reading",
			reading:  nil,
			expected: device.ActiveDischarge(2),
		},
		{
			name:     "grid import raises setpoint",
			reading:  reading(-1.5, -0.5),
			expected: device.ActiveDischarge(2.5),
		},
		{
			name:     "measured discharge above target and import",
			reading:  reading(-3, -0.5),
			expected: device.ActiveDischarge(3.5),
		},
		{
			name:     "balanced grid keeps measured discharge",
			reading:  reading(-2.6, 0.05),
			expected: device.ActiveDischarge(2.6),
		},
		{
			name:     "export keeps target",
			reading:  reading(-2, 1),
			expected: device.ActiveDischarge(2),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(clock.NewFixed(t0), nil)
			actual := g.Resolve(device.ActiveDischarge(2), tt.reading, 50)
			assert.Equal(t, tt.expected.Restriction, actual.Restriction)
			assert.InDelta(t, tt.expected.TargetKW, actual.TargetKW, 1e-9)
		})
	}
}

func TestResolveNotResponding(t *testing.T) {
	alarms := &alarm.ActiveAlarms{}
	clk := clock.NewFixed(t0)
	g := NewGuard(clk, alarms)

	for i := 1; i <= 5; i++ {
		clk.Add(5 * time.Second)
		mode := g.Resolve(device.ActiveCharge(1.5), reading(0, -2), 50)
		assert.Equal(t, device.ActiveCharge(1.5), mode, "cycle %d", i)
	}
	assert.Empty(t, alarms.List())

	clk.Add(5 * time.Second)
	assert.Equal(t, device.HandsOff, g.Resolve(device.ActiveCharge(1.5), reading(0, -2), 50))
	assert.Equal(t, []string{AlarmNotResponding}, alarms.List())

	for i := 7; i <= 30; i++ {
		clk.Add(5 * time.Second)
		assert.Equal(t, device.HandsOff, g.Resolve(device.ActiveCharge(1.5), reading(0, -2), 50), "cycle %d", i)
	}
	assert.Equal(t, 30, g.Errors())

	// the 31st cycle resets the counter so the next cycles try again
	clk.Add(5 * time.Second)
	assert.Equal(t, device.HandsOff, g.Resolve(device.ActiveCharge(1.5), reading(0, -2), 50))
	assert.Equal(t, 0, g.Errors())
	clk.Add(5 * time.Second)
	assert.Equal(t, device.ActiveCharge(1.5), g.Resolve(device.ActiveCharge(1.5), reading(0, -2), 50))

	// a responsive cycle clears the alarm
	clk.Add(5 * time.Second)
	assert.Equal(t, device.ActiveCharge(1.5), g.Resolve(device.ActiveCharge(1.5), reading(1.4, -1.5), 50))
	assert.Equal(t, 0, g.Errors())
	assert.Empty(t, alarms.List())
}

func TestResolveNoCharge(t *testing.T) {
	tests := []struct {
		name     string
		recent   bool
		reading  *device.PowerReading
		soc      float64
		expected device.Mode
	}{
		{name: "exporting", recent: true, reading: reading(0, 2), soc: 50, expected: device.Hold(device.RestrictionNoCharge)},
		{name: "importing after write", recent: true, reading: reading(0, -0.5), soc: 50, expected: device.HandsOff},
		{name: "discharging without write", recent: false, reading: reading(-0.3, 0), soc: 50, expected: device.HandsOff},
		{name: "charging without write", recent: false, reading: reading(1, 2), soc: 50, expected: device.Hold(device.RestrictionNoCharge)},
		{name: "battery full", recent: true, reading: reading(0, 2), soc: 99, expected: device.HandsOff},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFixed(t0)
			g := NewGuard(clk, nil)
			if tt.recent {
				g.Resolve(device.Hold(device.RestrictionNoCharge), nil, 50)
				clk.Add(5 * time.Second)
			}
			assert.Equal(t, tt.expected, g.Resolve(device.Hold(device.RestrictionNoCharge), tt.reading, tt.soc))
		})
	}
}

func TestResolveNoDischarge(t *testing.T) {
	tests := []struct {
		name     string
		recent   bool
		reading  *device.PowerReading
		expected device.Mode
	}{
		{name: "importing", recent: true, reading: reading(0, -1), expected: device.Hold(device.RestrictionNoDischarge)},
		{name: "exporting after write", recent: true, reading: reading(0, 0.5), expected: device.HandsOff},
		{name: "charging without write", recent: false, reading: reading(0.5, 0), expected: device.HandsOff},
		{name: "idle without write", recent: false, reading: reading(0.01, -1), expected: device.Hold(device.RestrictionNoDischarge)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFixed(t0)
			g := NewGuard(clk, nil)
			if tt.recent {
				g.Resolve(device.Hold(device.RestrictionNoDischarge), nil, 50)
				clk.Add(5 * time.Second)
			}
			assert.Equal(t, tt.expected, g.Resolve(device.Hold(device.RestrictionNoDischarge), tt.reading, 50))
		})
	}
}

func TestResolveWriteExpires(t *testing.T) {
	clk := clock.NewFixed(t0)
	g := NewGuard(clk, nil)
	g.Resolve(device.Hold(device.RestrictionNoCharge), nil, 50)

	clk.Add(5 * time.Second)
	assert.Equal(t, device.HandsOff, g.Resolve(device.Hold(device.RestrictionNoCharge), reading(0, -1), 50))

	// hands off is not a write, so the last write is older than 10s now
	clk.Add(8 * time.Second)
	assert.Equal(t, device.Hold(device.RestrictionNoCharge), g.Resolve(device.Hold(device.RestrictionNoCharge), reading(0, -1), 50))
}

func TestResolveNone(t *testing.T) {
	g := NewGuard(clock.NewFixed(t0), nil)
	assert.Equal(t, device.HandsOff, g.Resolve(device.HandsOff, reading(-1, 0), 50))
	assert.Equal(t, device.HandsOff, g.Resolve(device.HandsOff, nil, 50))
}
