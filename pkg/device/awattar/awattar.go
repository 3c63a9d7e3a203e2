package awattar

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device/fetch"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

const DefaultURL = "https://api.awattar.de"

type marketdata struct {
	Data []struct {
		StartTimestamp int64   `json:"start_timestamp"`
		EndTimestamp   int64   `json:"end_timestamp"`
		Marketprice    float64 `json:"marketprice"`
		Unit           string  `json:"unit"`
	} `json:"data"`
}

// Awattar provides day-ahead prices in €/MWh from the aWATTar market data api.
type Awattar struct {
	url     string
	client  *http.Client
	clock   clock.Clock
	limiter fetch.Limiter

	price hourseries.Series
	mu    sync.RWMutex
}

func New(url string, c clock.Clock) *Awattar {
	if url == "" {
		url = DefaultURL
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Awattar{
		url:     url,
		client:  fetch.DefaultClient,
		clock:   c,
		limiter: fetch.Limiter{Interval: time.Hour, Retry: 15 * time.Minute},
		price:   hourseries.New(),
	}
}

// Refresh fetches the prices from a day ago until two days ahead, at most once an hour.
func (a *Awattar) Refresh(ctx context.Context) error {
	now := a.clock.Now()
	a.mu.Lock()
	due := a.limiter.Try(now)
	a.mu.Unlock()
	if !due {
		return nil
	}

	u := fmt.Sprintf("%s/v1/marketdata?start=%d&end=%d",
		a.url,
		now.Add(-24*time.Hour).UnixMilli(),
		now.Add(48*time.Hour).UnixMilli(),
	)
	response := &marketdata{}
	err := fetch.JSON(ctx, a.client, u, response)
	if err != nil {
		return fmt.Errorf("awattar: %w", err)
	}

	price := hourseries.New()
	for _, d := range response.Data {
		price.Set(d.StartTimestamp/1000, d.Marketprice)
	}
	logrus.Debugf("awattar: got %d prices", len(price))

	a.mu.Lock()
	a.price = price
	a.limiter.Done(now)
	a.mu.Unlock()
	return nil
}

func (a *Awattar) Price() hourseries.Series {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.price.Clone()
}
