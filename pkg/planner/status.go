package planner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingData  = errors.New("missing planning data")
	ErrHourBoundary = errors.New("too close to the end of the hour")
)

// Status has one bit per device that refreshed successfully during a planning cycle.
type Status uint8

const (
	StatusBattery Status = 1 << iota
	StatusPV
	StatusPrice
	StatusTemp
	StatusHeatpump
	StatusHouse
	StatusBEV
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusBattery, "battery"},
	{StatusPV, "pv"},
	{StatusPrice, "price"},
	{StatusTemp, "temp"},
	{StatusHeatpump, "heatpump"},
	{StatusHouse, "house"},
	{StatusBEV, "bev"},
}

func (s Status) Has(bit Status) bool {
	return s&bit == bit
}

func (s Status) String() string {
	names := make([]string, 0, len(statusNames))
	for _, n := range statusNames {
		if s.Has(n.bit) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// MissingDataError is returned by Plan when data required for the horizon is not available.
type MissingDataError struct {
	Field  string
	Status Status
	Err    error
}

func (e *MissingDataError) Error() string {
	msg := fmt.Sprintf("%s: %s (refreshed: %s)", ErrMissingData, e.Field, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingDataError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMissingData}
	}
	return []error{ErrMissingData, e.Err}
}
