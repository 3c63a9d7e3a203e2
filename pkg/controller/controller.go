package controller

import (
	"fmt"

	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/state"
)

// Controller switches a heat pump between its operating modes.
type Controller interface {
	AllowHeating(bool) error
	AllowHotwater(bool) error
	BoostHotwater(bool) error

	// State returns the heat pump readings for telemetry.
	State() (*state.State, error)
	Alarms() ([]string, error)
}

// Apply maps a planned heat pump mode onto the controller switches.
func Apply(c Controller, mode device.HeatpumpMode) error {
	heating, hotwater, boost := true, true, false
	switch mode {
	case device.HeatpumpDisabled:
		heating, hotwater = false, false
	case device.HeatpumpEnhanced:
		boost = true
	case device.HeatpumpNormal:
	default:
		return fmt.Errorf("unknown heat pump mode %d", int(mode))
	}

	if err := c.AllowHeating(heating); err != nil {
		return fmt.Errorf("error setting heating: %w", err)
	}
	if err := c.AllowHotwater(hotwater); err != nil {
		return fmt.Errorf("error setting hotwater: %w", err)
	}
	if err := c.BoostHotwater(boost); err != nil {
		return fmt.Errorf("error setting hotwater boost: %w", err)
	}
	return nil
}

func Scale100itof(i int, err error) (*float64, error) {
	f := float64(i) / 100.0
	return &f, err
}

func Scale10itof(i int, err error) (*float64, error) {
	f := float64(i) / 10.0
	return &f, err
}
