package openmeteo

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/fetch"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

const DefaultURL = "https://api.open-meteo.com/v1/forecast"

type Config struct {
	URL       string
	Latitude  float64
	Longitude float64
	Refresh   time.Duration `default:"3h"`
}

type forecast struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature2m []float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// OpenMeteo provides the hourly outdoor temperature forecast in °C.
type OpenMeteo struct {
	config  Config
	client  *http.Client
	clock   clock.Clock
	limiter fetch.Limiter

	hourly hourseries.Series
	mu     sync.RWMutex
}

func New(config Config, c clock.Clock) (*OpenMeteo, error) {
	if err := device.RequireSetting("openmeteo", "latitude", config.Latitude != 0); err != nil {
		return nil, err
	}
	if err := device.RequireSetting("openmeteo", "longitude", config.Longitude != 0); err != nil {
		return nil, err
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Refresh == 0 {
		config.Refresh = 3 * time.Hour
	}
	if c == nil {
		c = clock.Real{}
	}
	return &OpenMeteo{
		config:  config,
		client:  fetch.DefaultClient,
		clock:   c,
		limiter: fetch.Limiter{Interval: config.Refresh, Retry: 15 * time.Minute},
		hourly:  hourseries.New(),
	}, nil
}

func (o *OpenMeteo) Refresh(ctx context.Context) error {
	now := o.clock.Now()
	o.mu.Lock()
	due := o.limiter.Try(now)
	o.mu.Unlock()
	if !due {
		return nil
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", o.config.Latitude))
	q.Set("longitude", fmt.Sprintf("%f", o.config.Longitude))
	q.Set("hourly", "temperature_2m")
	q.Set("models", "icon_seamless")
	q.Set("timezone", "GMT")

	resp := &forecast{}
	if err := fetch.JSON(ctx, o.client, o.config.URL+"?"+q.Encode(), resp); err != nil {
		return fmt.Errorf("openmeteo: %w", err)
	}
	if len(resp.Hourly.Time) != len(resp.Hourly.Temperature2m) {
		return fmt.Errorf("openmeteo: got %d times and %d temperatures", len(resp.Hourly.Time), len(resp.Hourly.Temperature2m))
	}

	hourly := hourseries.New()
	for i, ts := range resp.Hourly.Time {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, time.UTC)
		if err != nil {
			return fmt.Errorf("openmeteo: %w", err)
		}
		hourly.Set(t.Unix(), resp.Hourly.Temperature2m[i])
	}
	logrus.Debugf("openmeteo: got %d hours", len(hourly))

	o.mu.Lock()
	o.hourly = hourly
	o.limiter.Done(now)
	o.mu.Unlock()
	return nil
}

func (o *OpenMeteo) Hourly() hourseries.Series {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hourly.Clone()
}

// Daily returns the mean temperature of the local day containing t.
func (o *OpenMeteo) Daily(t time.Time) (float64, bool) {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	o.mu.RLock()
	mean := o.hourly.Mean(midnight.Unix(), 24)
	o.mu.RUnlock()
	if math.IsNaN(mean) {
		return 0, false
	}
	return mean, true
}
