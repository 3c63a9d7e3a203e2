package heatpump

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/controller"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

var ErrNoTemperature = errors.New("heatpump: no temperature forecast")

// Settings of the quadratic consumption model. Deltas are in €/MWh relative to the mean price.
type Settings struct {
	HeatingLimit  float64 `default:"15"`
	IndoorTemp    float64 `default:"20"`
	LinCoef       float64
	QuadCoef      float64
	DisableDelta  float64 `default:"30"`
	EnhanceDelta  float64 `default:"30"`
	EnhanceFactor float64 `default:"2"`
}

func DefaultSettings() Settings {
	return Settings{
		HeatingLimit:  15,
		IndoorTemp:    20,
		DisableDelta:  30,
		EnhanceDelta:  30,
		EnhanceFactor: 2,
	}
}

// Quadratic estimates the heat pump consumption from the daily mean outdoor temperature
// and moves it away from expensive hours.
type Quadratic struct {
	settings   Settings
	temp       device.TemperatureSource
	controller controller.Controller
	clock      clock.Clock

	schedule hourseries.Series
	modes    map[int64]device.HeatpumpMode
	applied  *device.HeatpumpMode
	mu       sync.RWMutex
}

// New returns the heat pump load. ctrl may be nil when the heat pump is not controlled.
func New(settings Settings, temp device.TemperatureSource, ctrl controller.Controller, c clock.Clock) (*Quadratic, error) {
	if err := device.RequireSetting("heatpump", "lin_coef", settings.LinCoef != 0); err != nil {
		return nil, err
	}
	if err := device.RequireSetting("heatpump", "quad_coef", settings.QuadCoef != 0); err != nil {
		return nil, err
	}
	if temp == nil {
		return nil, fmt.Errorf("%w: heatpump: temperature source is required", device.ErrInvalidSettings)
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Quadratic{
		settings:   settings,
		temp:       temp,
		controller: ctrl,
		clock:      c,
		schedule:   hourseries.New(),
		modes:      make(map[int64]device.HeatpumpMode),
	}, nil
}

// KW returns the mean power at a daily mean temperature of t.
func (q *Quadratic) KW(t float64) float64 {
	if t > q.settings.HeatingLimit {
		return 0
	}
	diff := q.settings.IndoorTemp - t
	return q.settings.LinCoef*diff + q.settings.QuadCoef*diff*diff
}

func (q *Quadratic) Refresh(ctx context.Context) error {
	return nil
}

func (q *Quadratic) Plan(ctx context.Context, free hourseries.Series, price device.PriceSource) error {
	now := q.clock.Now()
	start := hourseries.HourOf(now)

	schedule := hourseries.New()
	for _, h := range q.temp.Hourly().Keys() {
		if h < start {
			continue
		}
		t, ok := q.temp.Daily(time.Unix(h, 0).In(now.Location()))
		if !ok || math.IsNaN(t) {
			break
		}
		schedule[h] = q.KW(t)
	}
	if len(schedule) == 0 {
		return ErrNoTemperature
	}

	modes := q.modesFor(start, price.Price())
	for h, mode := range modes {
		if !schedule.Has(h) {
			delete(modes, h)
			continue
		}
		switch mode {
		case device.HeatpumpDisabled:
			schedule[h] = 0
		case device.HeatpumpEnhanced:
			schedule[h] *= q.settings.EnhanceFactor
		case device.HeatpumpNormal:
		}
	}

	q.mu.Lock()
	q.schedule = schedule
	q.modes = modes
	q.mu.Unlock()
	return nil
}

// modesFor disables the most expensive hours and enhances the cheapest ones.
func (q *Quadratic) modesFor(start int64, price hourseries.Series) map[int64]device.HeatpumpMode {
	modes := make(map[int64]device.HeatpumpMode)
	last := price.Last(start)
	if last < 0 {
		return modes
	}
	mean := price.Mean(start, int((last-start)/hourseries.Seconds)+1)

	for _, e := range price.OrderedFrom(start, true) {
		if e.Value-mean < q.settings.DisableDelta {
			break
		}
		modes[e.Hour] = device.HeatpumpDisabled
	}
	for _, e := range price.OrderedFrom(start, false) {
		if e.Value-mean > -q.settings.EnhanceDelta && e.Value > 0 {
			break
		}
		if _, ok := modes[e.Hour]; ok {
			continue
		}
		modes[e.Hour] = device.HeatpumpEnhanced
	}
	return modes
}

func (q *Quadratic) Schedule() hourseries.Series {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.schedule.Clone()
}

func (q *Quadratic) Modes() map[int64]device.HeatpumpMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	modes := make(map[int64]device.HeatpumpMode, len(q.modes))
	for h, m := range q.modes {
		modes[h] = m
	}
	return modes
}

// SetMode forwards mode to the controller when it differs from the last applied mode.
func (q *Quadratic) SetMode(ctx context.Context, mode device.HeatpumpMode) error {
	if q.controller == nil {
		return nil
	}
	q.mu.RLock()
	same := q.applied != nil && *q.applied == mode
	q.mu.RUnlock()
	if same {
		return nil
	}

	logrus.WithFields(logrus.Fields{"mode": mode}).Info("heatpump: set mode")
	if err := controller.Apply(q.controller, mode); err != nil {
		return fmt.Errorf("heatpump: %w", err)
	}
	q.mu.Lock()
	q.applied = &mode
	q.mu.Unlock()
	return nil
}

// Controller returns the controller or nil.
func (q *Quadratic) Controller() controller.Controller {
	return q.controller
}
