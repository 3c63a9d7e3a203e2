package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/hourseries"
)

const (
	pvHours   = 31
	tempHours = 97
	// after this local hour the next day's prices are known
	priceAnnounceHour = 13
)

// File is the format of historic data files.
type File struct {
	Time  []int64   `json:"time"`
	PV    []float64 `json:"pv"`
	Price []float64 `json:"price"`
	Temp  []float64 `json:"temp"`
}

// Replay serves historic prices, pv production and temperatures as if they were forecasts
// made at the time of its clock.
type Replay struct {
	clock clock.Clock
	pv    hourseries.Series
	price hourseries.Series
	temp  hourseries.Series
}

func Load(path string, c clock.Clock) (*Replay, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	f := &File{}
	if err := json.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("replay: %s: %w", path, err)
	}
	return New(f, c)
}

func New(f *File, c clock.Clock) (*Replay, error) {
	if len(f.Time) == 0 {
		return nil, fmt.Errorf("replay: no data")
	}
	if c == nil {
		c = clock.Real{}
	}
	r := &Replay{
		clock: c,
		pv:    hourseries.New(),
		price: hourseries.New(),
		temp:  hourseries.New(),
	}
	for i, t := range f.Time {
		if i < len(f.PV) {
			r.pv.Set(t, f.PV[i])
		}
		if i < len(f.Price) {
			r.price.Set(t, f.Price[i])
		}
		if i < len(f.Temp) {
			r.temp.Set(t, f.Temp[i])
		}
	}
	return r, nil
}

func (r *Replay) Refresh(ctx context.Context) error {
	return nil
}

// Price returns the prices from the current hour until the end of the day, or the end of
// the next day once its prices are announced.
func (r *Replay) Price() hourseries.Series {
	now := r.clock.Now()
	end := now
	if now.Hour() > priceAnnounceHour {
		end = now.AddDate(0, 0, 1)
	}
	y, m, d := end.Date()
	last := time.Date(y, m, d, 23, 0, 0, 0, now.Location()).Unix()
	return window(r.price, hourseries.HourOf(now), last+hourseries.Seconds)
}

func (r *Replay) Forecast() hourseries.Series {
	start := hourseries.HourOf(r.clock.Now())
	return window(r.pv, start, start+pvHours*hourseries.Seconds)
}

// Hourly returns the temperatures starting at midnight yesterday.
func (r *Replay) Hourly() hourseries.Series {
	y, m, d := r.clock.Now().AddDate(0, 0, -1).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, r.clock.Now().Location()).Unix()
	return window(r.temp, start, start+tempHours*hourseries.Seconds)
}

func (r *Replay) Daily(t time.Time) (float64, bool) {
	y, m, d := t.Date()
	mean := r.temp.Mean(time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Unix(), 24)
	if math.IsNaN(mean) {
		return 0, false
	}
	return mean, true
}

func window(s hourseries.Series, from, to int64) hourseries.Series {
	w := hourseries.New()
	for h, v := range s {
		if h >= from && h < to {
			w[h] = v
		}
	}
	return w
}
