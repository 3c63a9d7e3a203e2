package actuator

import (
	"fmt"
	"math"
	"time"

	"github.com/nergy-se/energymanager/pkg/alarm"
	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/sirupsen/logrus"
)

const (
	// cycles without response before the guard lets go of the battery
	maxErrors = 5
	// cycles after which control is tried again
	retryErrors = 30

	responseFactor = 0.2
	gridTolerance  = 0.1
	chargeMin      = 0.05
	recentWrite    = 10 * time.Second
	fullSOC        = 98.0

	AlarmNotResponding = "battery does not follow setpoint"
)

// Guard adjusts the planned battery mode to what is measured right now. It releases control
// when the battery does not follow the commanded setpoint.
type Guard struct {
	clock      clock.Clock
	alarms     *alarm.ActiveAlarms
	errorCount int
	lastWrite  time.Time
}

func NewGuard(c clock.Clock, alarms *alarm.ActiveAlarms) *Guard {
	if c == nil {
		c = clock.Real{}
	}
	if alarms == nil {
		alarms = &alarm.ActiveAlarms{}
	}
	return &Guard{
		clock:  c,
		alarms: alarms,
	}
}

// Resolve returns the mode to send to the battery. Without a reading the planned mode is
// returned unchanged.
func (g *Guard) Resolve(planned device.Mode, reading *device.PowerReading, soc float64) device.Mode {
	now := g.clock.Now()
	mode := planned
	if reading != nil && !math.IsNaN(reading.BatteryKW) && !math.IsNaN(reading.GridKW) {
		mode = g.resolve(planned, *reading, soc, now)
	}
	if _, ok := mode.Setpoint(); ok {
		g.lastWrite = now
	}
	return mode
}

func (g *Guard) resolve(planned device.Mode, reading device.PowerReading, soc float64, now time.Time) device.Mode {
	discharge := -reading.BatteryKW
	imports := -reading.GridKW
	recent := now.Sub(g.lastWrite) < recentWrite

	switch planned.Restriction {
	case device.RestrictionActiveDischarge:
		kw := planned.TargetKW
		if imports > gridTolerance {
			kw = math.Max(discharge, kw) + imports
		} else if math.Abs(imports) < gridTolerance && discharge > kw {
			kw = discharge
		}
		if !g.responding(discharge, kw) {
			return device.HandsOff
		}
		return device.ActiveDischarge(kw)

	case device.RestrictionActiveCharge:
		if !g.responding(reading.BatteryKW, planned.TargetKW) {
			return device.HandsOff
		}
		return planned

	case device.RestrictionNoCharge:
		if recent && imports > gridTolerance {
			return device.HandsOff
		}
		if !recent && discharge > 0 {
			return device.HandsOff
		}
		if soc > fullSOC {
			return device.HandsOff
		}
		return planned

	case device.RestrictionNoDischarge:
		if recent && imports < 0 {
			return device.HandsOff
		}
		if !recent && reading.BatteryKW > chargeMin {
			return device.HandsOff
		}
		return planned
	}
	return device.HandsOff
}

// responding counts the cycles where the measured power in the commanded direction stays
// below a fifth of the setpoint.
func (g *Guard) responding(measured, setpoint float64) bool {
	if measured >= setpoint*responseFactor {
		if g.errorCount > maxErrors {
			logrus.Info("battery follows setpoint again")
		}
		g.errorCount = 0
		g.alarms.Remove(AlarmNotResponding)
		return true
	}

	g.errorCount++
	if g.errorCount <= maxErrors {
		return true
	}
	if g.errorCount == maxErrors+1 {
		msg := fmt.Sprintf("battery does not react, measured: %.2f kW, setpoint: %.2f kW", measured, setpoint)
		logrus.Error(msg)
		g.alarms.Add(AlarmNotResponding)
	}
	if g.errorCount > retryErrors {
		logrus.Warn("battery retry")
		g.errorCount = 0
	}
	return false
}

func (g *Guard) Errors() int {
	return g.errorCount
}
