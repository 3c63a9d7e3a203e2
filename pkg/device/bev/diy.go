package bev

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/fetch"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

const statusSwitchedOn = 3

type diyStatus struct {
	SOC    float64 `json:"soc"`
	Time   float64 `json:"time"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Status int     `json:"status"`
}

// DIY is a relay switched charger that reports the state of the car over http.
type DIY struct {
	url      string
	settings Settings
	client   *http.Client
	clock    clock.Clock
	limiter  fetch.Limiter

	state       State
	schedule    hourseries.Series
	lastCommand time.Time
	mu          sync.RWMutex
}

func NewDIY(url string, settings Settings, c clock.Clock) (*DIY, error) {
	if err := device.RequireSetting("bev", "address", url != ""); err != nil {
		return nil, err
	}
	if err := device.RequireSetting("bev", "kwh", settings.KWh > 0); err != nil {
		return nil, err
	}
	if err := device.RequireSetting("bev", "kw", settings.MinKW > 0 && settings.MaxKW >= settings.MinKW); err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Real{}
	}
	return &DIY{
		url:      url,
		settings: settings,
		client:   fetch.DefaultClient,
		clock:    c,
		limiter:  fetch.Limiter{Interval: 30 * time.Second},
		state:    DefaultState(),
		schedule: hourseries.New(),
	}, nil
}

func (d *DIY) Refresh(ctx context.Context) error {
	now := d.clock.Now()
	d.mu.Lock()
	due := d.limiter.Try(now)
	d.mu.Unlock()
	if !due {
		return nil
	}

	s := &diyStatus{}
	if err := fetch.JSON(ctx, d.client, d.url+"/status", s); err != nil {
		return fmt.Errorf("bev: %w", err)
	}
	d.mu.Lock()
	d.state = State{SOC: s.SOC, MinSOC: s.Min, MaxSOC: s.Max, ChargeTime: s.Time}
	d.limiter.Done(now)
	d.mu.Unlock()
	return nil
}

func (d *DIY) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *DIY) Plan(ctx context.Context, free hourseries.Series, price device.PriceSource) error {
	schedule := Plan(d.clock.Now(), d.settings, d.State(), free, price.Price())
	d.mu.Lock()
	d.schedule = schedule
	d.mu.Unlock()
	return nil
}

func (d *DIY) Schedule() hourseries.Series {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schedule.Clone()
}

// Charge switches the charger on for dur. The charger only knows on and off, kw is logged.
func (d *DIY) Charge(ctx context.Context, kw float64, dur time.Duration) error {
	minutes := int(math.Round(dur.Minutes()))
	s := &diyStatus{}
	if err := fetch.JSON(ctx, d.client, fmt.Sprintf("%s/cmd?t=%d", d.url, minutes), s); err != nil {
		return fmt.Errorf("bev: %w", err)
	}
	if s.Status != statusSwitchedOn {
		return fmt.Errorf("bev: failed to switch on charger, status %d", s.Status)
	}
	logrus.Debugf("bev: charging %.1f kW for %d minutes", kw, minutes)
	d.mu.Lock()
	d.lastCommand = d.clock.Now()
	d.mu.Unlock()
	return nil
}

func (d *DIY) LastCommand() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastCommand
}
