package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/koding/multiconfig"
	"github.com/nergy-se/energymanager/pkg/api/v1/types"
	"github.com/nergy-se/energymanager/pkg/controller/thermiagenesis"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/bev"
	"github.com/nergy-se/energymanager/pkg/device/heatpump"
	"github.com/nergy-se/energymanager/pkg/device/openmeteo"
	"github.com/nergy-se/energymanager/pkg/device/solarprognose"
)

type CliConfig struct {
	// Config is an optional TOML file. Environment and flags override its values.
	Config string

	LogLevel     string        `default:"info"`
	PollInterval time.Duration `default:"5s"`
	Horizon      time.Duration `default:"24h"`
	LoadHorizon  time.Duration `default:"48h"`
	Guard        time.Duration `default:"10s"`

	// Listen is the address of the http api, empty disables it.
	Listen   string `default:":8080"`
	Database string `default:"energymanager.db"`
	// File is a replay file used by devices of type file.
	File string
	// ReplayStart (RFC3339) runs the planner on a simulated clock that advances ReplayStep
	// every cycle.
	ReplayStart string
	ReplayStep  time.Duration `default:"1h"`

	Battery  BatteryConfig
	Price    PriceConfig
	PV       PVConfig
	House    HouseConfig
	Temp     TempConfig
	BEV      BEVConfig
	Heatpump HeatpumpConfig
	Meter    MeterConfig
	MQTT     MQTTConfig
}

type BatteryConfig struct {
	Type    string `default:"dummy"`
	Address string
	UnitID  int `default:"71"`

	// dummy battery
	Capacity float64 `default:"10"`
	SOC      float64 `default:"50"`

	Settings device.BatterySettings
}

type PriceConfig struct {
	Type string `default:"awattar"`
	URL  string `default:"https://api.awattar.de"`
}

type PVConfig struct {
	Type          string `default:"solarprognose"`
	Solarprognose solarprognose.Config
}

type HouseConfig struct {
	KWhPerDay float64 `default:"10"`
}

type TempConfig struct {
	Type      string `default:"openmeteo"`
	OpenMeteo openmeteo.Config
}

type BEVConfig struct {
	// Type is empty when there is no car.
	Type     string
	Address  string
	Settings bev.Settings
}

type HeatpumpConfig struct {
	Enabled  bool
	Settings heatpump.Settings

	// Control is empty when the heat pump is only modelled.
	Control        string
	Address        string
	SlaveID        int `default:"1"`
	Readonly       bool
	Thermiagenesis thermiagenesis.Settings
}

type MeterConfig struct {
	// Type is empty when the battery measures the grid power.
	Type      string
	Device    string `default:"/dev/ttyAMA0"`
	Model     string `default:"garo-GNM3D-MBUS"`
	PrimaryID int    `default:"1"`
}

type MQTTConfig struct {
	// Listen starts an embedded broker, for example :1883.
	Listen string
	// Broker is an external broker, for example tcp://192.168.1.2:1883.
	Broker   string
	ClientID string `default:"energymanager"`
	Username string
	Password string
	Prefix   string `default:"energymanager"`
}

// Load reads the configuration from default tags, environment and flags. When a config
// file is given it is loaded first.
func Load() (*CliConfig, error) {
	c := &CliConfig{}
	err := multiconfig.New().Load(c)
	if err != nil {
		return nil, err
	}
	if path := c.Config; path != "" {
		c = &CliConfig{}
		err = multiconfig.NewWithPath(path).Load(c)
		if err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}
	return c, c.Validate()
}

func (c *CliConfig) Validate() error {
	var errs []error
	invalid := func(name string, v interface{}) {
		errs = append(errs, fmt.Errorf("%w: unknown %s type %q", device.ErrInvalidSettings, name, v))
	}

	switch types.BatteryType(c.Battery.Type) {
	case types.BatteryTypeKostalBYD:
		if c.Battery.Address == "" {
			errs = append(errs, device.RequireSetting("battery", "address", false))
		}
	case types.BatteryTypeDummy:
	default:
		invalid("battery", c.Battery.Type)
	}
	switch types.PriceType(c.Price.Type) {
	case types.PriceTypeAwattar, types.PriceTypeFile:
	default:
		invalid("price", c.Price.Type)
	}
	switch types.PVType(c.PV.Type) {
	case types.PVTypeSolarprognose, types.PVTypeFile:
	default:
		invalid("pv", c.PV.Type)
	}
	switch types.TempType(c.Temp.Type) {
	case types.TempTypeOpenMeteo, types.TempTypeFile:
	default:
		invalid("temp", c.Temp.Type)
	}
	switch types.BEVType(c.BEV.Type) {
	case "", types.BEVTypeDIY, types.BEVTypeDummy:
	default:
		invalid("bev", c.BEV.Type)
	}
	switch types.HeatControlType(c.Heatpump.Control) {
	case "", types.HeatControlTypeThermiaGenesis, types.HeatControlTypeHogforsGST, types.HeatControlTypeDummy:
	default:
		invalid("heat control", c.Heatpump.Control)
	}
	switch types.MeterType(c.Meter.Type) {
	case "", types.MeterTypeMbus:
	default:
		invalid("meter", c.Meter.Type)
	}

	if c.usesFile() && c.File == "" {
		errs = append(errs, device.RequireSetting("config", "file", false))
	}
	if c.ReplayStart != "" {
		if _, err := time.Parse(time.RFC3339, c.ReplayStart); err != nil {
			errs = append(errs, fmt.Errorf("%w: ReplayStart: %s", device.ErrInvalidSettings, err))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: PollInterval must be > 0", device.ErrInvalidSettings))
	}
	return errors.Join(errs...)
}

func (c *CliConfig) usesFile() bool {
	return types.PriceType(c.Price.Type) == types.PriceTypeFile ||
		types.PVType(c.PV.Type) == types.PVTypeFile ||
		types.TempType(c.Temp.Type) == types.TempTypeFile
}
