package bev

import (
	"math"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/hourseries"
)

type Settings struct {
	KWh   float64 `default:"20"`
	MinKW float64 `default:"2.2"`
	MaxKW float64 `default:"2.2"`
}

// State is reported by the car or its charger.
type State struct {
	SOC    float64
	MinSOC float64
	MaxSOC float64
	// ChargeTime is the number of hours until MinSOC must be reached.
	ChargeTime float64
}

func DefaultState() State {
	return State{SOC: 30, MinSOC: 55, MaxSOC: 85, ChargeTime: 2}
}

// share of free production that must cover the minimum charge power
const pvShare = 0.8

// Plan returns the charging power per hour. It runs four passes: free production then cheap
// grid hours until MinSOC within ChargeTime, then free production and cheap hours until
// MaxSOC anywhere in the price horizon.
func Plan(now time.Time, s Settings, st State, free, price hourseries.Series) hourseries.Series {
	schedule := hourseries.New()
	if st.ChargeTime <= 0.001 || st.SOC >= st.MaxSOC || s.KWh <= 0 {
		return schedule
	}

	start := hourseries.HourOf(now)
	deadline := now.Add(time.Duration(st.ChargeTime * float64(time.Hour)))
	soc := st.SOC
	for run := 0; run < 4; run++ {
		limit := st.MinSOC
		hours := price.Ordered(start, deadline.Unix(), false)
		if run >= 2 {
			limit = st.MaxSOC
			hours = price.OrderedFrom(start, false)
		}
		pvOnly := run%2 == 0
		if soc >= limit {
			continue
		}
		for _, e := range hours {
			h := e.Hour
			if schedule.Has(h) {
				continue
			}
			kw := s.MinKW
			if pvOnly {
				f := free.Value(h)
				if f < pvShare*s.MinKW {
					continue
				}
				kw = math.Min(math.Max(pvShare*f, s.MinKW), s.MaxKW)
			}
			schedule[h] = kw
			soc += 100 / s.KWh * kw * clock.HourLeft(now, h)
			if soc > limit {
				break
			}
		}
	}
	return schedule
}
