package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Fixed is a settable clock used for tests and file replay.
type Fixed struct {
	t time.Time
	sync.RWMutex
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.RLock()
	defer f.RUnlock()
	return f.t
}

func (f *Fixed) Set(t time.Time) {
	f.Lock()
	f.t = t
	f.Unlock()
}

// Add moves the clock forward and returns the new time.
func (f *Fixed) Add(d time.Duration) time.Time {
	f.Lock()
	defer f.Unlock()
	f.t = f.t.Add(d)
	return f.t
}

// HourLeft returns the fraction of the hour starting at unix hour h that is left at now.
// Future hours return 1 and past hours 0.
func HourLeft(now time.Time, h int64) float64 {
	left := float64(3600-(now.Unix()-h)) / 3600.0
	if left > 1 {
		return 1
	}
	if left < 0 {
		return 0
	}
	return left
}
