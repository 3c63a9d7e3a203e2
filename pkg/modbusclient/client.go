package modbusclient

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
	"github.com/sirupsen/logrus"
)

type Client interface {
	ReadInputRegister(address uint16) (int, error)
	ReadHoldingRegister32(address uint16) (int, error)
	ReadHoldingRegister16(address uint16) (int, error)
	ReadHoldingRegisters(address, count uint16) ([]byte, error)
	ReadFloat32(address uint16) (float64, error)
	ReadDiscreteInput(address uint16) ([]byte, error)
	ReadDiscreteInputs(address, count uint16) ([]bool, error)
	WriteSingleRegister(address, value uint16) (results []byte, err error)
	WriteSingleCoil(address, value uint16) (int, error)
	WriteFloat32(address uint16, value float64) error
}

type client struct {
	client modbus.Client
	close  func() error
}

func New(c modbus.Client, close func() error) *client {
	return &client{
		client: c,
		close:  close,
	}
}

// NewTCP returns a client for a modbus TCP device. The connection is opened on first use
// and reopened after broken pipes and timeouts.
func NewTCP(address string, slaveID byte, timeout time.Duration) *client {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = timeout
	return New(modbus.NewClient(handler), handler.Close)
}

func (c *client) closeIfNeeded(e error) {
	if e == nil {
		return
	}

	if errors.Is(e, syscall.EPIPE) {
		logrus.Warn("reconnect due to broken pipe")
		err := c.close()
		if err != nil {
			logrus.Errorf("error closing client: %s", err)
		}
	}

	if errors.Is(e, os.ErrDeadlineExceeded) {
		logrus.Warn("reconnect due to i/o timeout")
		err := c.close()
		if err != nil {
			logrus.Errorf("error closing client: %s", err)
		}
	}
}

func (c *client) ReadInputRegister(address uint16) (int, error) {
	b, err := c.client.ReadInputRegisters(address, 1)
	if err != nil {
		c.closeIfNeeded(err)
		err = fmt.Errorf("error reading address %d: %w", address, err)
	}
	return Decode(b), err
}

func (c *client) ReadHoldingRegister16(address uint16) (int, error) {
	b, err := c.ReadHoldingRegisters(address, 1)
	return Decode(b), err
}

func (c *client) ReadHoldingRegister32(address uint16) (int, error) {
	b, err := c.ReadHoldingRegisters(address, 2)
	return Decode(b), err
}

// ReadHoldingRegisters returns the raw bytes of count registers.
func (c *client) ReadHoldingRegisters(address, count uint16) ([]byte, error) {
	b, err := c.client.ReadHoldingRegisters(address, count)
	if err != nil {
		c.closeIfNeeded(err)
		err = fmt.Errorf("error reading address %d: %w", address, err)
	}
	return b, err
}

func (c *client) ReadFloat32(address uint16) (float64, error) {
	b, err := c.ReadHoldingRegisters(address, 2)
	if err != nil {
		return math.NaN(), err
	}
	return DecodeFloat32(b), nil
}

func (c *client) ReadDiscreteInput(address uint16) ([]byte, error) {
	b, err := c.client.ReadDiscreteInputs(address, 1)

	if err != nil {
		c.closeIfNeeded(err)
		err = fmt.Errorf("error reading address %d: %w", address, err)
	}
	return b, err
}

// ReadDiscreteInputs unpacks count input bits starting at address.
func (c *client) ReadDiscreteInputs(address, count uint16) ([]bool, error) {
	b, err := c.client.ReadDiscreteInputs(address, count)
	if err != nil {
		c.closeIfNeeded(err)
		return nil, fmt.Errorf("error reading address %d: %w", address, err)
	}
	return DecodeBits(b, int(count)), nil
}

func (c *client) WriteSingleRegister(address, value uint16) ([]byte, error) {
	b, err := c.client.WriteSingleRegister(address, value)
	if err != nil {
		c.closeIfNeeded(err)
		err = fmt.Errorf("error writing address %d value %d error: %w", address, value, err)
	}
	return b, err
}

func (c *client) WriteSingleCoil(address, value uint16) (int, error) {
	b, err := c.client.WriteSingleCoil(address, value)
	if err != nil {
		c.closeIfNeeded(err)
		err = fmt.Errorf("error writing address %d value %d error: %w", address, value, err)
	}
	return Decode(b), err
}

func (c *client) WriteFloat32(address uint16, value float64) error {
	_, err := c.client.WriteMultipleRegisters(address, 2, EncodeFloat32(value))
	if err != nil {
		c.closeIfNeeded(err)
		return fmt.Errorf("error writing address %d value %.2f error: %w", address, value, err)
	}
	return nil
}

// Decode High byte first high word first (big endian)
func Decode(data []byte) int {

	switch len(data) {
	case 1:
		var i int8
		binary.Read(bytes.NewBuffer(data), binary.BigEndian, &i)
		return int(i)
	case 2:
		var i int16
		binary.Read(bytes.NewBuffer(data), binary.BigEndian, &i)
		return int(i)
	case 4:
		var i int32
		binary.Read(bytes.NewBuffer(data), binary.BigEndian, &i)
		return int(i)
	case 8:
		var i int64
		binary.Read(bytes.NewBuffer(data), binary.BigEndian, &i)
		return int(i)
	}

	return 0
}

// DecodeFloat32 decodes an IEEE 754 float stored low word first (CDAB), high byte first
// within each word.
func DecodeFloat32(data []byte) float64 {
	if len(data) != 4 {
		return math.NaN()
	}
	bits := uint32(binary.BigEndian.Uint16(data[2:]))<<16 | uint32(binary.BigEndian.Uint16(data[:2]))
	return float64(math.Float32frombits(bits))
}

func EncodeFloat32(v float64) []byte {
	bits := math.Float32bits(float32(v))
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[:2], uint16(bits))
	binary.BigEndian.PutUint16(b[2:], uint16(bits>>16))
	return b
}

// DecodeBits unpacks n bits, least significant bit of the first byte first.
func DecodeBits(data []byte, n int) []bool {
	bits := make([]bool, n)
	for i := 0; i < n && i/8 < len(data); i++ {
		bits[i] = data[i/8]>>(i%8)&1 == 1
	}
	return bits
}

func CoilValue(b bool) uint16 {
	if b {
		return WriteCoilValueOn
	}
	return WriteCoilValueOff
}

const (
	WriteCoilValueOn  uint16 = 0xff00
	WriteCoilValueOff uint16 = 0
)
