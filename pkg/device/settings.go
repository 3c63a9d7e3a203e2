package device

import (
	"errors"
	"fmt"
)

var ErrInvalidSettings = errors.New("invalid settings")

// BatterySettings are the planner thresholds of a battery. Prices in €/MWh, rates in
// percent of the capacity per hour.
type BatterySettings struct {
	MDMinSOC   float64 `default:"30"`
	MDMinPrice float64 `default:"80"`
	MDSOCRate  float64 `default:"20"`

	EDMinSOC   float64 `default:"30"`
	EDMinPrice float64 `default:"80"`
	EDSOCRate  float64 `default:"20"`
	EDMaxPV    float64 `default:"1.5"`

	MinGrid float64 `default:"2"`

	ChargePower        float64 `default:"1.5"`
	ChargeMaxPrice     float64 `default:"100"`
	ChargeMinPriceDiff float64 `default:"50"`

	NoDischargeMinPriceDiff float64 `default:"10"`

	// local hours selecting the morning discharge pass
	MorningStart int `default:"5"`
	MorningEnd   int `default:"11"`
}

func DefaultBatterySettings() BatterySettings {
	return BatterySettings{
		MDMinSOC:                30,
		MDMinPrice:              80,
		MDSOCRate:               20,
		EDMinSOC:                30,
		EDMinPrice:              80,
		EDSOCRate:               20,
		EDMaxPV:                 1.5,
		MinGrid:                 2,
		ChargePower:             1.5,
		ChargeMaxPrice:          100,
		ChargeMinPriceDiff:      50,
		NoDischargeMinPriceDiff: 10,
		MorningStart:            5,
		MorningEnd:              11,
	}
}

func (s BatterySettings) Validate() error {
	var errs []error
	positive := map[string]float64{
		"MDSOCRate":   s.MDSOCRate,
		"EDSOCRate":   s.EDSOCRate,
		"ChargePower": s.ChargePower,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be > 0", ErrInvalidSettings, name))
		}
	}
	for name, v := range map[string]float64{"MDMinSOC": s.MDMinSOC, "EDMinSOC": s.EDMinSOC} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%w: %s must be within 0-100", ErrInvalidSettings, name))
		}
	}
	if s.MinGrid < 0 {
		errs = append(errs, fmt.Errorf("%w: MinGrid must be >= 0", ErrInvalidSettings))
	}
	if s.MorningStart < 0 || s.MorningEnd > 24 || s.MorningStart >= s.MorningEnd {
		errs = append(errs, fmt.Errorf("%w: morning window %d-%d", ErrInvalidSettings, s.MorningStart, s.MorningEnd))
	}
	return errors.Join(errs...)
}

// RequireSetting returns a configuration error when a mandatory setting is missing.
func RequireSetting(device, name string, set bool) error {
	if !set {
		return fmt.Errorf("%w: %s: %s is required", ErrInvalidSettings, device, name)
	}
	return nil
}
