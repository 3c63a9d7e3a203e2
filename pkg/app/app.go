package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/actuator"
	"github.com/nergy-se/energymanager/pkg/alarm"
	"github.com/nergy-se/energymanager/pkg/api/v1/config"
	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/controller"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/fetch"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/nergy-se/energymanager/pkg/mqtt"
	"github.com/nergy-se/energymanager/pkg/planner"
	"github.com/nergy-se/energymanager/pkg/state"
	"github.com/nergy-se/energymanager/pkg/store"
	"github.com/sirupsen/logrus"
)

const (
	bevChargeDuration = 2 * time.Minute
	stateInterval     = time.Minute
)

// Actuators are the devices the run loop commands. All but Battery are optional.
type Actuators struct {
	Battery    device.Battery
	Meter      device.GridMeter
	BEV        device.Charger
	Heatpump   device.HeatpumpController
	Controller controller.Controller
}

type App struct {
	wg     *sync.WaitGroup
	config *config.CliConfig

	clock     clock.Clock
	replay    *clock.Fixed
	planner   *planner.Planner
	actuators Actuators
	guard     *actuator.Guard
	alarms    *alarm.ActiveAlarms
	telemetry *mqtt.Telemetry
	store     *store.Store

	stateLimiter fetch.Limiter
	hpAlarms     []string
	lastHour     int64
}

func New(config *config.CliConfig) *App {
	return &App{
		wg:           &sync.WaitGroup{},
		config:       config,
		alarms:       &alarm.ActiveAlarms{},
		stateLimiter: fetch.Limiter{Interval: stateInterval},
	}
}

// Start sets up the configured devices and services and starts the run loop.
func (a *App) Start(ctx context.Context) error {
	err := a.setup(ctx)
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go a.controllerLoop(ctx)
	return nil
}

func (a *App) Wait() {
	a.wg.Wait()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logrus.Errorf("error closing database: %s", err)
		}
	}
}

func (a *App) Planner() *planner.Planner {
	return a.planner
}

func (a *App) Alarms() *alarm.ActiveAlarms {
	return a.alarms
}

func (a *App) controllerLoop(ctx context.Context) {
	defer a.wg.Done()
	a.cycle(ctx)
	delay := a.nextDelay()
	timer := time.NewTimer(delay)
	logrus.Debug("scheduling next run in ", delay)
	for {
		select {
		case <-timer.C:
			a.cycle(ctx)
			timer.Reset(a.nextDelay())
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (a *App) nextDelay() time.Duration {
	if a.replay != nil {
		a.replay.Add(a.config.ReplayStep)
		return a.config.PollInterval
	}
	return calculateNextDelay(a.clock.Now(), a.config.PollInterval)
}

// cycle plans and applies the current hour of the plan.
func (a *App) cycle(ctx context.Context) {
	plan, err := a.planner.Plan(ctx)
	if errors.Is(err, planner.ErrHourBoundary) {
		return
	}
	if err != nil {
		logrus.Errorf("planning failed: %s", err)
		return
	}
	now := a.clock.Now()

	planned := plan.Mode(now)
	reading := a.reading(ctx)
	mode := a.guard.Resolve(planned, reading, a.actuators.Battery.SOC())
	logrus.WithFields(logrus.Fields{
		"planned": planned.String(),
		"mode":    mode.String(),
	}).Debug("battery mode")
	if err := a.actuators.Battery.SetMode(ctx, mode); err != nil {
		logrus.Errorf("error setting battery mode: %s", err)
	}

	h := hourseries.HourOf(now)
	if a.actuators.BEV != nil {
		if kw := plan.BEV[h]; kw > 0 {
			if err := a.actuators.BEV.Charge(ctx, kw, bevChargeDuration); err != nil {
				logrus.Errorf("error charging bev: %s", err)
			}
		}
	}
	if a.actuators.Heatpump != nil {
		if err := a.actuators.Heatpump.SetMode(ctx, plan.HeatpumpMode(now)); err != nil {
			logrus.Errorf("error setting heat pump mode: %s", err)
		}
	}

	if a.stateLimiter.Due(now) {
		a.stateLimiter.Done(now)
		a.publishState(ctx, plan, mode, reading, now)
	}
	if h != a.lastHour {
		a.lastHour = h
		a.hourly(ctx, plan, now)
	}
}

// reading combines the battery power meter with the grid meter. It returns nil when
// nothing is measured.
func (a *App) reading(ctx context.Context) *device.PowerReading {
	r := device.PowerReading{BatteryKW: math.NaN(), GridKW: math.NaN(), Time: a.clock.Now()}
	measured := false
	if pm, ok := a.actuators.Battery.(device.PowerMeter); ok {
		r = pm.Reading()
		measured = true
	}
	if a.actuators.Meter != nil {
		kw, err := a.actuators.Meter.GridKW(ctx)
		if err != nil {
			logrus.Warnf("error reading grid meter: %s", err)
		} else {
			r.GridKW = kw
			measured = true
		}
	}
	if !measured {
		return nil
	}
	return &r
}

func (a *App) hourly(ctx context.Context, plan *planner.Plan, now time.Time) {
	info := plan.Info(now)
	if a.telemetry != nil {
		if err := a.telemetry.PublishPlan(info); err != nil {
			logrus.Error(err)
		}
	}
	if a.store != nil {
		if err := a.store.Save(ctx, info); err != nil {
			logrus.Error(err)
		}
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debug("\n" + plan.Report())
	}
}

func (a *App) publishState(ctx context.Context, plan *planner.Plan, mode device.Mode, reading *device.PowerReading, now time.Time) {
	s := state.State{
		Time:         now,
		BatterySOC:   state.Pointer(a.actuators.Battery.SOC()),
		Restriction:  mode.String(),
		HeatpumpMode: plan.HeatpumpMode(now).String(),
	}
	if reading != nil {
		if !math.IsNaN(reading.BatteryKW) {
			s.BatteryKW = state.Pointer(reading.BatteryKW)
		}
		if !math.IsNaN(reading.GridKW) {
			s.GridKW = state.Pointer(reading.GridKW)
		}
	}
	if c := a.actuators.Controller; c != nil {
		hp, err := c.State()
		if err != nil {
			logrus.Warnf("error reading heat pump state: %s", err)
		}
		s.Merge(hp)
		a.syncAlarms(c)
	}
	s.Alarms = a.alarms.List()

	if a.telemetry != nil {
		if err := a.telemetry.PublishState(s); err != nil {
			logrus.Error(err)
		}
	}
}

// syncAlarms mirrors the heat pump alarms into the active alarms.
func (a *App) syncAlarms(c controller.Controller) {
	current, err := c.Alarms()
	if err != nil {
		logrus.Warnf("error reading heat pump alarms: %s", err)
		return
	}
	active := make(map[string]bool, len(current))
	for _, msg := range current {
		active[msg] = true
		if a.alarms.Add(msg) {
			logrus.Warnf("heat pump alarm: %s", msg)
		}
	}
	for _, msg := range a.hpAlarms {
		if !active[msg] {
			a.alarms.Remove(msg)
		}
	}
	a.hpAlarms = current
}

func (a *App) String() string {
	return fmt.Sprintf("app(battery: %s, bev: %t, heatpump: %t)",
		a.config.Battery.Type, a.actuators.BEV != nil, a.actuators.Heatpump != nil)
}
