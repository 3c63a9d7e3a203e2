package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, DefaultBatterySettings().Validate())

	var tests = []struct {
		name   string
		modify func(s *BatterySettings)
	}{
		{name: "zero charge power", modify: func(s *BatterySettings) { s.ChargePower = 0 }},
		{name: "negative rate", modify: func(s *BatterySettings) { s.EDSOCRate = -1 }},
		{name: "soc out of range", modify: func(s *BatterySettings) { s.MDMinSOC = 120 }},
		{name: "empty morning window", modify: func(s *BatterySettings) { s.MorningStart = 11 }},
		{name: "negative min grid", modify: func(s *BatterySettings) { s.MinGrid = -2 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultBatterySettings()
			tt.modify(&s)
			err := s.Validate()
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSettings))
		})
	}
}

func TestRequireSetting(t *testing.T) {
	assert.NoError(t, RequireSetting("bev", "address", true))
	err := RequireSetting("bev", "address", false)
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.EqualError(t, err, "invalid settings: bev: address is required")
}

func TestModeSetpoint(t *testing.T) {
	var tests = []struct {
		mode     Mode
		expected float64
		ok       bool
	}{
		{mode: HandsOff, expected: 0, ok: false},
		{mode: Hold(RestrictionNoCharge), expected: 0, ok: true},
		{mode: Hold(RestrictionNoDischarge), expected: 0, ok: true},
		{mode: ActiveCharge(1.5), expected: 1.5, ok: true},
		{mode: ActiveDischarge(2), expected: -2, ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.mode.String(), func(t *testing.T) {
			kw, ok := tt.mode.Setpoint()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, kw)
		})
	}
}

func TestParseRestriction(t *testing.T) {
	for r := RestrictionNone; r <= RestrictionActiveDischarge; r++ {
		parsed, err := ParseRestriction(r.String())
		assert.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseRestriction("boost")
	assert.EqualError(t, err, `unknown restriction "boost"`)
}
