package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var DefaultClient = &http.Client{
	Timeout: time.Second * 30,
}

// JSON fetches u and decodes the json response into v.
func JSON(ctx context.Context, client *http.Client, u string, v interface{}) error {
	if client == nil {
		client = DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("error fetching %s StatusCode: %d", req.URL.Path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// Limiter tells when a cached value is due for a refresh. A failed attempt
// waits Retry, or Interval when Retry is zero, before the next one.
type Limiter struct {
	Interval time.Duration
	Retry    time.Duration
	last     time.Time
	attempt  time.Time
}

// Due returns true when both the last successful update and the last attempt are old enough.
func (l *Limiter) Due(now time.Time) bool {
	if !l.last.IsZero() && now.Sub(l.last) < l.Interval {
		return false
	}
	retry := l.Retry
	if retry == 0 {
		retry = l.Interval
	}
	return l.attempt.IsZero() || now.Sub(l.attempt) >= retry
}

// Try stamps an attempt if one is due.
func (l *Limiter) Try(now time.Time) bool {
	if !l.Due(now) {
		return false
	}
	l.attempt = now
	return true
}

func (l *Limiter) Done(now time.Time) {
	l.last = now
	l.attempt = now
}
