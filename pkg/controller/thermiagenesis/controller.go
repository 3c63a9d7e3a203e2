package thermiagenesis

import (
	"fmt"
	"sync"

	"github.com/nergy-se/energymanager/pkg/controller"
	"github.com/nergy-se/energymanager/pkg/modbusclient"
	"github.com/nergy-se/energymanager/pkg/state"
	"github.com/sirupsen/logrus"
)

const (
	coilHotwater = 8
	coilHeating  = 9

	regHotwaterStart = 22
	regHotwaterStop  = 23
)

// Settings are the tap water start/stop temperatures in °C.
type Settings struct {
	HotWaterNormalStart float64 `default:"45"`
	HotWaterNormalStop  float64 `default:"50"`
	HotWaterBoostStart  float64 `default:"52"`
	HotWaterBoostStop   float64 `default:"58"`
}

type Thermiagenesis struct {
	client   modbusclient.Client
	settings Settings
	readonly bool

	heatingAllowed  bool
	hotwaterAllowed bool
	hotwaterBoost   bool
	mu              sync.RWMutex
}

func New(client modbusclient.Client, readonly bool, settings Settings) *Thermiagenesis {
	return &Thermiagenesis{
		client:          client,
		settings:        settings,
		readonly:        readonly,
		heatingAllowed:  true,
		hotwaterAllowed: true,
	}
}

func (ts *Thermiagenesis) State() (*state.State, error) {
	s := &state.State{}
	var err error

	s.BrineIn, err = controller.Scale100itof(ts.client.ReadInputRegister(10)) // brine in
	if err != nil {
		return s, err
	}
	s.BrineOut, err = controller.Scale100itof(ts.client.ReadInputRegister(11)) // brine out
	if err != nil {
		return s, err
	}
	s.Outdoor, err = controller.Scale100itof(ts.client.ReadInputRegister(13))
	if err != nil {
		return s, err
	}
	s.WarmWater, err = controller.Scale100itof(ts.client.ReadInputRegister(17)) // tank tap water weighted temperature
	if err != nil {
		return s, err
	}
	s.Compressor, err = controller.Scale100itof(ts.client.ReadInputRegister(54)) // compressor speed percent
	if err != nil {
		return s, err
	}
	s.Indoor, err = controller.Scale10itof(ts.client.ReadInputRegister(121)) // room temperature sensor
	if err != nil {
		return s, err
	}
	s.HeatCarrierForward, err = controller.Scale100itof(ts.client.ReadInputRegister(9)) // condenser out
	if err != nil {
		return s, err
	}
	s.HeatCarrierReturn, err = controller.Scale100itof(ts.client.ReadInputRegister(8)) // condenser in
	if err != nil {
		return s, err
	}
	s.COP = state.Pointer(cop(*s.HeatCarrierForward))

	ts.mu.RLock()
	s.HeatingAllowed = state.Pointer(ts.heatingAllowed)
	s.HotwaterAllowed = state.Pointer(ts.hotwaterAllowed)
	s.HotwaterBoost = state.Pointer(ts.hotwaterBoost)
	ts.mu.RUnlock()
	return s, nil
}

// cop is linear between 3.45 at 60°C and 5.9 at 35°C forward temperature.
func cop(forward float64) float64 {
	return 3.45 + 0.098*(60.0-forward)
}

func (ts *Thermiagenesis) AllowHeating(b bool) error {
	if err := ts.writeCoil(coilHeating, b); err != nil {
		return err
	}
	ts.mu.Lock()
	ts.heatingAllowed = b
	ts.mu.Unlock()
	return nil
}

func (ts *Thermiagenesis) AllowHotwater(b bool) error {
	if err := ts.writeCoil(coilHotwater, b); err != nil {
		return err
	}
	ts.mu.Lock()
	ts.hotwaterAllowed = b
	ts.mu.Unlock()
	return nil
}

func (ts *Thermiagenesis) BoostHotwater(b bool) error {
	start := ts.settings.HotWaterNormalStart
	stop := ts.settings.HotWaterNormalStop
	if b {
		start = ts.settings.HotWaterBoostStart
		stop = ts.settings.HotWaterBoostStop
	}
	if stop == 0 || start == 0 {
		return fmt.Errorf("start/stop temperature for boost not configured")
	}

	logrus.WithFields(logrus.Fields{"start": start, "stop": stop}).Debugf("thermiagenesis: boosthotwater")
	if !ts.readonly {
		_, err := ts.client.WriteSingleRegister(regHotwaterStart, uint16(start*100)) // 100 = 1c
		if err != nil {
			return fmt.Errorf("error writeTemps %d: %w", regHotwaterStart, err)
		}
		_, err = ts.client.WriteSingleRegister(regHotwaterStop, uint16(stop*100))
		if err != nil {
			return fmt.Errorf("error writeTemps %d: %w", regHotwaterStop, err)
		}
	}
	ts.mu.Lock()
	ts.hotwaterBoost = b
	ts.mu.Unlock()
	return nil
}

func (ts *Thermiagenesis) writeCoil(address uint16, b bool) error {
	if ts.readonly {
		logrus.Debugf("thermiagenesis: readonly, skipping coil %d = %t", address, b)
		return nil
	}
	_, err := ts.client.WriteSingleCoil(address, modbusclient.CoilValue(b))
	return err
}
