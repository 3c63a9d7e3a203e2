package hogforsgst

import (
	"github.com/nergy-se/energymanager/pkg/controller"
	"github.com/nergy-se/energymanager/pkg/modbusclient"
	"github.com/nergy-se/energymanager/pkg/state"
	"github.com/sirupsen/logrus"
)

const (
	regCOP      = 0
	regHotwater = 8
	regHeating  = 9
)

type Hogforsgst struct {
	client modbusclient.Client
}

func New(client modbusclient.Client) *Hogforsgst {
	return &Hogforsgst{
		client: client,
	}
}

func (ts *Hogforsgst) State() (*state.State, error) {
	cop, err := controller.Scale100itof(ts.client.ReadInputRegister(regCOP))
	if err != nil {
		return nil, err
	}
	return &state.State{COP: cop}, nil
}

func (ts *Hogforsgst) AllowHeating(b bool) error {
	_, err := ts.client.WriteSingleRegister(regHeating, boolRegister(b))
	return err
}

func (ts *Hogforsgst) AllowHotwater(b bool) error {
	_, err := ts.client.WriteSingleRegister(regHotwater, boolRegister(b))
	return err
}

// BoostHotwater is not supported by the GST controller.
func (ts *Hogforsgst) BoostHotwater(b bool) error {
	if b {
		logrus.Debug("hogforsgst: hotwater boost not supported")
	}
	return nil
}

func (ts *Hogforsgst) Alarms() ([]string, error) {
	return nil, nil
}

func boolRegister(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
