package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Horizon     time.Duration
	LoadHorizon time.Duration
	// Guard is the part of the hour end where no plan is made.
	Guard time.Duration
	Clock clock.Clock
}

func DefaultConfig() Config {
	return Config{
		Horizon:     24 * time.Hour,
		LoadHorizon: 48 * time.Hour,
		Guard:       10 * time.Second,
		Clock:       clock.Real{},
	}
}

// Devices are the data sources and actuators the planner works with. BEV, Heatpump and
// Temp are optional.
type Devices struct {
	Battery  device.Battery
	Price    device.PriceSource
	PV       device.ForecastSource
	House    device.ForecastSource
	BEV      device.SchedulableLoad
	Heatpump device.SchedulableLoad
	Temp     device.TemperatureSource
}

type Planner struct {
	config  Config
	devices Devices

	current *Plan
	mu      sync.RWMutex

	// visit receives the hours each dispatch pass considered, in visiting order.
	visit func(pass string, hours []int64)
}

func New(config Config, devices Devices) (*Planner, error) {
	def := DefaultConfig()
	if config.Horizon <= 0 {
		config.Horizon = def.Horizon
	}
	if config.LoadHorizon < config.Horizon {
		config.LoadHorizon = def.LoadHorizon
	}
	if config.Guard <= 0 {
		config.Guard = def.Guard
	}
	if config.Clock == nil {
		config.Clock = def.Clock
	}

	var errs []error
	if devices.Battery == nil {
		errs = append(errs, fmt.Errorf("%w: battery is required", device.ErrInvalidSettings))
	}
	if devices.Price == nil {
		errs = append(errs, fmt.Errorf("%w: price source is required", device.ErrInvalidSettings))
	}
	if devices.PV == nil {
		errs = append(errs, fmt.Errorf("%w: pv forecast is required", device.ErrInvalidSettings))
	}
	if devices.House == nil {
		errs = append(errs, fmt.Errorf("%w: house consumption is required", device.ErrInvalidSettings))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := devices.Battery.Settings().Validate(); err != nil {
		return nil, fmt.Errorf("battery: %w", err)
	}

	return &Planner{
		config:  config,
		devices: devices,
	}, nil
}

// Current returns the last successful plan or nil.
func (p *Planner) Current() *Plan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Info returns the planning information of the last successful plan for the hour containing t.
func (p *Planner) Info(t time.Time) Info {
	return p.Current().Info(t)
}

func (p *Planner) Report() string {
	return p.Current().Report()
}

// Plan refreshes all devices and computes a new plan for the coming hours. The plan is
// published as Current when it succeeds.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	now := p.config.Clock.Now()
	start := hourseries.HourOf(now)
	if time.Unix(start+hourseries.Seconds, 0).Sub(now) < p.config.Guard {
		return nil, ErrHourBoundary
	}

	status := p.refresh(ctx)

	plan, err := p.build(ctx, now, status)
	if err != nil {
		return nil, err
	}

	r := newRun(plan, p.devices.Battery.Settings(), now, p.visit)
	r.dispatch()

	p.mu.Lock()
	p.current = plan
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"soc":    plan.SOC,
		"hours":  len(plan.Hours()),
		"status": plan.Status,
		"mode":   plan.Mode(now),
	}).Debug("plan updated")

	return plan, nil
}

func (p *Planner) refresh(ctx context.Context) Status {
	type refresher struct {
		bit Status
		dev device.Refresher
	}
	list := []refresher{
		{StatusBattery, p.devices.Battery},
		{StatusPV, p.devices.PV},
		{StatusPrice, p.devices.Price},
		{StatusHouse, p.devices.House},
	}
	// optional devices that are not configured count as refreshed
	var status Status
	if p.devices.Temp != nil {
		list = append(list, refresher{StatusTemp, p.devices.Temp})
	} else {
		status |= StatusTemp
	}
	if p.devices.Heatpump != nil {
		list = append(list, refresher{StatusHeatpump, p.devices.Heatpump})
	} else {
		status |= StatusHeatpump
	}
	if p.devices.BEV != nil {
		list = append(list, refresher{StatusBEV, p.devices.BEV})
	} else {
		status |= StatusBEV
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, r := range list {
		r := r
		g.Go(func() error {
			if err := r.dev.Refresh(ctx); err != nil {
				logrus.Warnf("refresh %s failed, using cached data: %s", r.bit, err)
				return nil
			}
			mu.Lock()
			status |= r.bit
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return status
}

func (p *Planner) build(ctx context.Context, now time.Time, status Status) (*Plan, error) {
	start := hourseries.HourOf(now)
	missing := func(field string, err error) error {
		return &MissingDataError{Field: field, Status: status, Err: err}
	}

	price := p.devices.Price.Price()
	last := price.Last(start)
	if last < 0 {
		return nil, missing("price", nil)
	}
	end := start + int64(p.config.Horizon/time.Second)
	if last+hourseries.Seconds < end {
		end = last + hourseries.Seconds
	}
	loadEnd := start + int64(p.config.LoadHorizon/time.Second)

	bat := p.devices.Battery
	capacity := bat.Capacity()
	if capacity <= 0 {
		return nil, missing("battery capacity", nil)
	}
	soc := bat.SOC()
	if math.IsNaN(soc) || math.IsInf(soc, 0) {
		return nil, missing("battery soc", nil)
	}

	pv := p.devices.PV.Forecast()
	if len(pv) == 0 {
		return nil, missing("pv", nil)
	}
	house := p.devices.House.Forecast()
	for h := start; h < end; h += hourseries.Seconds {
		if !house.Has(h) {
			return nil, missing("house", fmt.Errorf("no value for %s", time.Unix(h, 0).Format(time.RFC3339)))
		}
	}

	plan := newPlan(now, start, end)
	plan.Status = status
	plan.SOC = soc
	plan.Capacity = capacity
	for h := start; h < end; h += hourseries.Seconds {
		plan.Price[h] = price[h]
		plan.House[h] = house[h]
		plan.PV[h] = pv.Value(h)
	}
	if p.devices.Temp != nil {
		for h, v := range p.devices.Temp.Hourly() {
			if h >= start && h < end {
				plan.Temp[h] = v
			}
		}
	}

	free := hourseries.New()
	for h := start; h < loadEnd; h += hourseries.Seconds {
		if v, ok := house.Get(h); ok {
			free[h] = pv.Value(h) - v
		}
	}

	if l := p.devices.BEV; l != nil {
		if err := l.Plan(ctx, free.Clone(), p.devices.Price); err != nil {
			return nil, missing("bev", err)
		}
		schedule := l.Schedule()
		for h := range free {
			free[h] -= schedule.Value(h)
		}
		copyWindow(plan.BEV, schedule, start, end)
	}
	if l := p.devices.Heatpump; l != nil {
		if err := l.Plan(ctx, free.Clone(), p.devices.Price); err != nil {
			return nil, missing("heatpump", err)
		}
		copyWindow(plan.Heatpump, l.Schedule(), start, end)
		if c, ok := l.(device.HeatpumpController); ok {
			for h, m := range c.Modes() {
				if h >= start && h < end {
					plan.HeatpumpModes[h] = m
				}
			}
		}
	}
	plan.BEV.Fill(start, end, 0)
	plan.Heatpump.Fill(start, end, 0)

	for h := start; h < end; h += hourseries.Seconds {
		plan.Consumption[h] = plan.House[h] + plan.BEV[h] + plan.Heatpump[h]
	}
	return plan, nil
}

func copyWindow(dst, src hourseries.Series, start, end int64) {
	for h, v := range src {
		if h >= start && h < end {
			dst[h] = v
		}
	}
}
