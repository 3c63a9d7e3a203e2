package device

import (
	"context"
	"time"

	"github.com/nergy-se/energymanager/pkg/hourseries"
)

// Refresher updates the cached state of a device. Implementations rate limit themselves
// and keep their last known data when a refresh fails.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PriceSource provides day-ahead prices in €/MWh.
type PriceSource interface {
	Refresher
	Price() hourseries.Series
}

// ForecastSource provides a kW forecast per hour (PV production, house load).
type ForecastSource interface {
	Refresher
	Forecast() hourseries.Series
}

type TemperatureSource interface {
	Refresher
	Hourly() hourseries.Series
	// Daily returns the mean temperature of the day containing t.
	Daily(t time.Time) (float64, bool)
}

// SchedulableLoad plans its own consumption against the production left over by
// previously planned loads.
type SchedulableLoad interface {
	Refresher
	Plan(ctx context.Context, free hourseries.Series, price PriceSource) error
	Schedule() hourseries.Series
}

type Charger interface {
	Charge(ctx context.Context, kw float64, d time.Duration) error
}

type HeatpumpController interface {
	Modes() map[int64]HeatpumpMode
	SetMode(ctx context.Context, mode HeatpumpMode) error
}

type Battery interface {
	Refresher
	SOC() float64
	// Capacity in kWh.
	Capacity() float64
	Settings() BatterySettings
	SetMode(ctx context.Context, mode Mode) error
}

// PowerReading is a measurement with the sign conventions of the plan: battery
// charging and grid export are positive.
type PowerReading struct {
	BatteryKW float64
	GridKW    float64
	Time      time.Time
}

// PowerMeter is implemented by batteries that measure their own power flow.
type PowerMeter interface {
	Reading() PowerReading
}

// GridMeter returns the real time net grid power in kW, export positive.
type GridMeter interface {
	GridKW(ctx context.Context) (float64, error)
}
