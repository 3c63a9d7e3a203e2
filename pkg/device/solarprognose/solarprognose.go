package solarprognose

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/fetch"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

const DefaultURL = "https://www.solarprognose.de/web/solarprediction/api/v1"

type Config struct {
	URL         string
	AccessToken string
	PlantID     int
	Factor      float64       `default:"1"`
	Refresh     time.Duration `default:"3h"`
}

type response struct {
	Status  int                  `json:"status"`
	Message string               `json:"message"`
	Data    map[string][]float64 `json:"data"`
}

// Solarprognose provides an hourly pv forecast in kW from solarprognose.de.
type Solarprognose struct {
	config  Config
	client  *http.Client
	clock   clock.Clock
	limiter fetch.Limiter

	forecast hourseries.Series
	mu       sync.RWMutex
}

func New(config Config, c clock.Clock) (*Solarprognose, error) {
	if err := device.RequireSetting("solarprognose", "access token", config.AccessToken != ""); err != nil {
		return nil, err
	}
	if err := device.RequireSetting("solarprognose", "plant id", config.PlantID != 0); err != nil {
		return nil, err
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Factor == 0 {
		config.Factor = 1
	}
	if config.Refresh == 0 {
		config.Refresh = 3 * time.Hour
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Solarprognose{
		config:   config,
		client:   fetch.DefaultClient,
		clock:    c,
		limiter:  fetch.Limiter{Interval: config.Refresh, Retry: 15 * time.Minute},
		forecast: hourseries.New(),
	}, nil
}

func (s *Solarprognose) Refresh(ctx context.Context) error {
	now := s.clock.Now()
	s.mu.Lock()
	due := s.limiter.Try(now)
	s.mu.Unlock()
	if !due {
		return nil
	}

	q := url.Values{}
	q.Set("access-token", s.config.AccessToken)
	q.Set("item", "plant")
	q.Set("id", strconv.Itoa(s.config.PlantID))
	q.Set("type", "hourly")
	q.Set("_format", "json")

	resp := &response{}
	err := fetch.JSON(ctx, s.client, s.config.URL+"?"+q.Encode(), resp)
	if err != nil {
		return fmt.Errorf("solarprognose: %w", err)
	}
	if resp.Status != 0 {
		return fmt.Errorf("solarprognose: status %d: %s", resp.Status, resp.Message)
	}

	forecast := hourseries.New()
	for key, v := range resp.Data {
		end, err := strconv.ParseInt(key, 10, 64)
		if err != nil || len(v) == 0 {
			continue
		}
		// keys are the end of the hour
		forecast.Set(end-hourseries.Seconds, v[0]*s.config.Factor)
	}

	y, m, d := now.AddDate(0, 0, 1).Date()
	tomorrow := time.Date(y, m, d, 12, 0, 0, 0, now.Location())
	if !forecast.Has(hourseries.HourOf(tomorrow)) {
		return fmt.Errorf("solarprognose: invalid data, no forecast for %s", tomorrow.Format(time.DateTime))
	}
	logrus.Debugf("solarprognose: got %d hours", len(forecast))

	s.mu.Lock()
	s.forecast = forecast
	s.limiter.Done(now)
	s.mu.Unlock()
	return nil
}

func (s *Solarprognose) Forecast() hourseries.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forecast.Clone()
}
