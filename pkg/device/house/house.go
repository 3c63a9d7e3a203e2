package house

import (
	"context"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
)

// hours forecasted from the current hour
const forecastHours = 72

// Constant is a house consumption that is the same every hour. It excludes the heat pump
// and the BEV.
type Constant struct {
	kw    float64
	clock clock.Clock
}

func NewConstant(kwhPerDay float64, c clock.Clock) (*Constant, error) {
	if err := device.RequireSetting("house", "kwh per day", kwhPerDay > 0); err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Constant{kw: kwhPerDay / 24, clock: c}, nil
}

func (h *Constant) Refresh(ctx context.Context) error {
	return nil
}

func (h *Constant) Forecast() hourseries.Series {
	s := hourseries.New()
	start := hourseries.HourOf(h.clock.Now())
	s.Fill(start, start+forecastHours*hourseries.Seconds, h.kw)
	return s
}
