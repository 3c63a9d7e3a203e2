package bev

import (
	"context"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

// Dummy is a car with a fixed state.
type Dummy struct {
	settings Settings
	state    State
	clock    clock.Clock

	schedule hourseries.Series
	mu       sync.RWMutex
}

func NewDummy(settings Settings, state State, c clock.Clock) *Dummy {
	if c == nil {
		c = clock.Real{}
	}
	return &Dummy{
		settings: settings,
		state:    state,
		clock:    c,
		schedule: hourseries.New(),
	}
}

func (d *Dummy) Refresh(ctx context.Context) error {
	return nil
}

func (d *Dummy) Plan(ctx context.Context, free hourseries.Series, price device.PriceSource) error {
	schedule := Plan(d.clock.Now(), d.settings, d.state, free, price.Price())
	d.mu.Lock()
	d.schedule = schedule
	d.mu.Unlock()
	return nil
}

func (d *Dummy) Schedule() hourseries.Series {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schedule.Clone()
}

func (d *Dummy) Charge(ctx context.Context, kw float64, dur time.Duration) error {
	logrus.Infof("dummy: bev charge %.1f kW for %s", kw, dur)
	return nil
}
