package dummy

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

// Battery is an in memory battery. It logs and records every mode it is given.
type Battery struct {
	soc      float64
	capacity float64
	settings device.BatterySettings
	reading  *device.PowerReading
	modes    []device.Mode
	err      error
	sync.RWMutex
}

func NewBattery(capacity, soc float64, settings device.BatterySettings) *Battery {
	return &Battery{
		soc:      soc,
		capacity: capacity,
		settings: settings,
	}
}

func (b *Battery) Refresh(ctx context.Context) error {
	b.RLock()
	defer b.RUnlock()
	return b.err
}

func (b *Battery) SOC() float64 {
	b.RLock()
	defer b.RUnlock()
	return b.soc
}

func (b *Battery) SetSOC(soc float64) {
	b.Lock()
	b.soc = soc
	b.Unlock()
}

func (b *Battery) Capacity() float64 {
	b.RLock()
	defer b.RUnlock()
	return b.capacity
}

func (b *Battery) Settings() device.BatterySettings {
	return b.settings
}

// SetRefreshError makes the following refreshes fail with err.
func (b *Battery) SetRefreshError(err error) {
	b.Lock()
	b.err = err
	b.Unlock()
}

func (b *Battery) SetMode(ctx context.Context, mode device.Mode) error {
	logrus.Debug("dummy: battery mode: ", mode)
	b.Lock()
	b.modes = append(b.modes, mode)
	b.Unlock()
	return nil
}

// Modes returns all modes set so far.
func (b *Battery) Modes() []device.Mode {
	b.RLock()
	defer b.RUnlock()
	return append([]device.Mode(nil), b.modes...)
}

func (b *Battery) SetReading(r device.PowerReading) {
	b.Lock()
	b.reading = &r
	b.Unlock()
}

// Reading returns the last reading set, or a zero reading without time.
func (b *Battery) Reading() device.PowerReading {
	b.RLock()
	defer b.RUnlock()
	if b.reading == nil {
		return device.PowerReading{BatteryKW: math.NaN(), GridKW: math.NaN()}
	}
	return *b.reading
}

// Source serves a fixed series as price, forecast or temperature.
type Source struct {
	series hourseries.Series
	err    error
	sync.RWMutex
}

func NewSource(series hourseries.Series) *Source {
	if series == nil {
		series = hourseries.New()
	}
	return &Source{series: series}
}

// Constant returns a source with the value v for the hours [from, from+hours).
func Constant(from int64, hours int, v float64) *Source {
	s := hourseries.New()
	for i := 0; i < hours; i++ {
		s.Set(from+int64(i)*hourseries.Seconds, v)
	}
	return NewSource(s)
}

func (s *Source) Refresh(ctx context.Context) error {
	s.RLock()
	defer s.RUnlock()
	return s.err
}

func (s *Source) SetRefreshError(err error) {
	s.Lock()
	s.err = err
	s.Unlock()
}

func (s *Source) Set(series hourseries.Series) {
	s.Lock()
	s.series = series
	s.Unlock()
}

func (s *Source) get() hourseries.Series {
	s.RLock()
	defer s.RUnlock()
	return s.series.Clone()
}

func (s *Source) Price() hourseries.Series {
	return s.get()
}

func (s *Source) Forecast() hourseries.Series {
	return s.get()
}

func (s *Source) Hourly() hourseries.Series {
	return s.get()
}

// Daily returns the mean of the 24 hours of the local day containing t.
func (s *Source) Daily(t time.Time) (float64, bool) {
	y, m, d := t.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Unix()
	mean := s.get().Mean(from, 24)
	if math.IsNaN(mean) {
		return 0, false
	}
	return mean, true
}

// Load is a schedulable load with a fixed schedule.
type Load struct {
	schedule hourseries.Series
	modes    map[int64]device.HeatpumpMode
	free     hourseries.Series
	err      error
	charges  []float64
	sync.RWMutex
}

func NewLoad(schedule hourseries.Series) *Load {
	if schedule == nil {
		schedule = hourseries.New()
	}
	return &Load{
		schedule: schedule,
		modes:    make(map[int64]device.HeatpumpMode),
	}
}

func (l *Load) Refresh(ctx context.Context) error {
	return nil
}

// SetPlanError makes the following Plan calls fail with err.
func (l *Load) SetPlanError(err error) {
	l.Lock()
	l.err = err
	l.Unlock()
}

func (l *Load) Plan(ctx context.Context, free hourseries.Series, price device.PriceSource) error {
	l.Lock()
	defer l.Unlock()
	l.free = free
	return l.err
}

// Free returns the free production passed to the last Plan call.
func (l *Load) Free() hourseries.Series {
	l.RLock()
	defer l.RUnlock()
	return l.free.Clone()
}

func (l *Load) Schedule() hourseries.Series {
	l.RLock()
	defer l.RUnlock()
	return l.schedule.Clone()
}

func (l *Load) SetModes(modes map[int64]device.HeatpumpMode) {
	l.Lock()
	l.modes = modes
	l.Unlock()
}

func (l *Load) Modes() map[int64]device.HeatpumpMode {
	l.RLock()
	defer l.RUnlock()
	modes := make(map[int64]device.HeatpumpMode, len(l.modes))
	for k, v := range l.modes {
		modes[k] = v
	}
	return modes
}

func (l *Load) SetMode(ctx context.Context, mode device.HeatpumpMode) error {
	logrus.Info("dummy: heatpump mode: ", mode)
	return nil
}

func (l *Load) Charge(ctx context.Context, kw float64, d time.Duration) error {
	logrus.Infof("dummy: charge %.1f kW for %s", kw, d)
	l.Lock()
	l.charges = append(l.charges, kw)
	l.Unlock()
	return nil
}

// Charges returns the kW of every Charge call.
func (l *Load) Charges() []float64 {
	l.RLock()
	defer l.RUnlock()
	return append([]float64(nil), l.charges...)
}
