package dummy

import (
	"math/rand"
	"sync"

	"github.com/nergy-se/energymanager/pkg/state"
	"github.com/sirupsen/logrus"
)

// Dummy logs the switches and reports made up readings.
type Dummy struct {
	alarms []string

	heating  bool
	hotwater bool
	boost    bool
	sync.Mutex
}

func New() *Dummy {
	return &Dummy{heating: true, hotwater: true}
}

func (ts *Dummy) State() (*state.State, error) {
	compressor := float64(rand.Intn(100-20) + 20)
	ts.Lock()
	defer ts.Unlock()
	return &state.State{
		Indoor:          state.Pointer(21.1),
		Outdoor:         state.Pointer(11.1),
		BrineIn:         state.Pointer(4.2),
		BrineOut:        state.Pointer(2.2),
		Compressor:      &compressor,
		HeatingAllowed:  state.Pointer(ts.heating),
		HotwaterAllowed: state.Pointer(ts.hotwater),
		HotwaterBoost:   state.Pointer(ts.boost),
	}, nil
}

func (ts *Dummy) AllowHeating(b bool) error {
	logrus.Info("dummy: AllowHeating: ", b)
	ts.Lock()
	ts.heating = b
	ts.Unlock()
	return nil
}

func (ts *Dummy) AllowHotwater(b bool) error {
	logrus.Info("dummy: AllowHotwater: ", b)
	ts.Lock()
	ts.hotwater = b
	ts.Unlock()
	return nil
}

func (ts *Dummy) BoostHotwater(b bool) error {
	logrus.Info("dummy: BoostHotwater: ", b)
	ts.Lock()
	ts.boost = b
	ts.Unlock()
	return nil
}

// AddAlarm raises an alarm that is reported until ResetAlarms.
func (ts *Dummy) AddAlarm(msg string) {
	logrus.Infof("adding alarm with %s", msg)
	ts.Lock()
	ts.alarms = append(ts.alarms, msg)
	ts.Unlock()
}

func (ts *Dummy) ResetAlarms() {
	ts.Lock()
	ts.alarms = nil
	ts.Unlock()
}

func (ts *Dummy) Alarms() ([]string, error) {
	ts.Lock()
	defer ts.Unlock()
	return append([]string(nil), ts.alarms...), nil
}
