package mbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonaz/gombus"
	"github.com/nergy-se/energymanager/pkg/api/v1/meter"
	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/sirupsen/logrus"
)

const (
	ModelGaroGNM3D = "garo-GNM3D-MBUS"

	// a failed read falls back to a reading at most this old
	maxAge = 30 * time.Second
)

// Mbus reads a grid meter on a serial M-Bus line.
type Mbus struct {
	device    string
	model     string
	primaryID int
	clock     clock.Clock

	conn  gombus.Conn
	cache meter.Cache
	mutex *sync.Mutex
}

func New(device, model string, primaryID int, c clock.Clock) (*Mbus, error) {
	if model != ModelGaroGNM3D {
		return nil, fmt.Errorf("mbus: unsupported meter model %q", model)
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Mbus{
		device:    device,
		model:     model,
		primaryID: primaryID,
		clock:     c,
		mutex:     &sync.Mutex{},
	}, nil
}

func (m *Mbus) init() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conn != nil {
		return nil
	}
	c, err := gombus.DialSerial(m.device)
	if err != nil {
		return err
	}
	m.conn = c
	return nil
}

func (m *Mbus) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

// GridKW implements device.GridMeter. A failed read returns the last reading if it is recent.
func (m *Mbus) GridKW(ctx context.Context) (float64, error) {
	data, err := m.ReadValues(ctx)
	if err != nil {
		if cached, ok := m.cache.Fresh(m.clock.Now(), maxAge); ok {
			logrus.Warnf("mbus: using cached reading: %s", err)
			return cached.GridKW(), nil
		}
		return 0, err
	}
	return data.GridKW(), nil
}

func (m *Mbus) ReadValues(ctx context.Context) (*meter.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := m.init()
	if err != nil {
		return nil, err
	}

	frame, err := m.read(m.primaryID)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("mbus: error reading %d: %w", m.primaryID, err)
	}

	values := make([]float64, 0, len(frame.DataRecords))
	for _, r := range frame.DataRecords {
		values = append(values, r.Value)
	}
	data, err := decode(m.model, values)
	if err != nil {
		return nil, err
	}
	data.Id = fmt.Sprint(m.primaryID)
	data.Time = m.clock.Now()
	m.cache.Set(data)
	return data, nil
}

func decode(model string, values []float64) (*meter.Data, error) {
	data := &meter.Data{Model: model}
	switch model {
	case ModelGaroGNM3D:
		if len(values) < 11 {
			return nil, fmt.Errorf("mbus: %s: expected 11 records got %d", model, len(values))
		}
		data.Total_WH = values[0]
		data.Current_W = values[2]
		data.Current_VLL = values[6]
		data.Current_VLN = values[7]
		data.L1_A = values[8]
		data.L2_A = values[9]
		data.L3_A = values[10]
	}
	return data, nil
}

func (m *Mbus) read(primaryAddr int) (*gombus.DecodedFrame, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, err := m.conn.Write(gombus.SndNKE(uint8(primaryAddr)))
	if err != nil {
		return nil, err
	}

	err = m.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if err != nil {
		return nil, err
	}

	_, err = gombus.ReadSingleCharFrame(m.conn)
	if err != nil {
		return nil, err
	}

	return gombus.ReadSingleFrame(m.conn, primaryAddr)
}
