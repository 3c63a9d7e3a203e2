package kostalbyd

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/modbusclient"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPort   = 1502
	DefaultUnitID = 71
)

// holding registers, all float32 low word first
const (
	regCurrent    = 200 // A, discharge positive
	regReady      = 208
	regSOC        = 210 // %
	regVoltage    = 216 // V
	regPowermeter = 252 // W, import positive
	regSetpoint   = 1034
	regCapacity   = 1068 // Wh

	statusBlockStart = regCurrent
	statusBlockCount = regVoltage + 2 - regCurrent
)

type Battery struct {
	client   modbusclient.Client
	clock    clock.Clock
	settings device.BatterySettings
	capacity float64

	soc     float64
	ready   bool
	reading device.PowerReading
	mu      sync.RWMutex
}

// New reads the battery capacity, retrying with bo until it succeeds or ctx is done. A nil bo
// retries with exponential backoff until ctx is done.
func New(ctx context.Context, client modbusclient.Client, settings device.BatterySettings, bo backoff.BackOff) (*Battery, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("kostalbyd: %w", err)
	}
	if bo == nil {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 2 * time.Second
		exp.MaxInterval = time.Minute
		exp.MaxElapsedTime = 0
		bo = exp
	}

	readCapacity := func() (float64, error) {
		wh, err := client.ReadFloat32(regCapacity)
		if err != nil {
			logrus.Errorf("kostalbyd: failed to read battery capacity: %s", err)
			return 0, err
		}
		if wh <= 0 || math.IsNaN(wh) {
			return 0, fmt.Errorf("kostalbyd: invalid capacity %.0f Wh", wh)
		}
		return wh / 1000, nil
	}
	kwh, err := backoff.RetryWithData(readCapacity, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	logrus.Infof("kostalbyd: battery with %.1f kWh", kwh)

	return &Battery{
		client:   client,
		clock:    clock.Real{},
		settings: settings,
		capacity: kwh,
		soc:      math.NaN(),
		reading:  device.PowerReading{BatteryKW: math.NaN(), GridKW: math.NaN()},
	}, nil
}

// Refresh reads the battery status. The battery is read on every call.
func (b *Battery) Refresh(ctx context.Context) error {
	data, err := b.client.ReadHoldingRegisters(statusBlockStart, statusBlockCount)
	if err != nil {
		return fmt.Errorf("kostalbyd: %w", err)
	}
	if len(data) < statusBlockCount*2 {
		return fmt.Errorf("kostalbyd: short read of %d bytes", len(data))
	}
	float := func(reg int) float64 {
		offset := (reg - statusBlockStart) * 2
		return modbusclient.DecodeFloat32(data[offset : offset+4])
	}
	grid, err := b.client.ReadFloat32(regPowermeter)
	if err != nil {
		return fmt.Errorf("kostalbyd: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.soc = float(regSOC)
	b.ready = float(regReady) != 0
	b.reading = device.PowerReading{
		BatteryKW: -float(regCurrent) * float(regVoltage) / 1000,
		GridKW:    -grid / 1000,
		Time:      b.clock.Now(),
	}
	return nil
}

func (b *Battery) SOC() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.soc
}

func (b *Battery) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

func (b *Battery) Capacity() float64 {
	return b.capacity
}

func (b *Battery) Settings() device.BatterySettings {
	return b.settings
}

func (b *Battery) Reading() device.PowerReading {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reading
}

// SetMode writes the power setpoint of the mode. Hands off writes nothing, the inverter falls
// back to its own management when the external setpoint is not renewed.
func (b *Battery) SetMode(ctx context.Context, mode device.Mode) error {
	kw, ok := mode.Setpoint()
	if !ok {
		return nil
	}
	// the inverter takes discharge as positive
	w := 0.0
	if kw != 0 {
		w = -kw * 1000
	}
	logrus.Debugf("kostalbyd: set %s (%.0f W)", mode, w)
	return b.client.WriteFloat32(regSetpoint, w)
}
