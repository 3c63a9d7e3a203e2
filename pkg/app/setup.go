package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nergy-se/energymanager/pkg/actuator"
	"github.com/nergy-se/energymanager/pkg/api/v1/types"
	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/controller"
	ctrldummy "github.com/nergy-se/energymanager/pkg/controller/dummy"
	"github.com/nergy-se/energymanager/pkg/controller/hogforsgst"
	"github.com/nergy-se/energymanager/pkg/controller/thermiagenesis"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/awattar"
	"github.com/nergy-se/energymanager/pkg/device/bev"
	"github.com/nergy-se/energymanager/pkg/device/dummy"
	"github.com/nergy-se/energymanager/pkg/device/heatpump"
	"github.com/nergy-se/energymanager/pkg/device/house"
	"github.com/nergy-se/energymanager/pkg/device/kostalbyd"
	"github.com/nergy-se/energymanager/pkg/device/openmeteo"
	"github.com/nergy-se/energymanager/pkg/device/replay"
	"github.com/nergy-se/energymanager/pkg/device/solarprognose"
	"github.com/nergy-se/energymanager/pkg/mbus"
	"github.com/nergy-se/energymanager/pkg/modbusclient"
	"github.com/nergy-se/energymanager/pkg/mqtt"
	"github.com/nergy-se/energymanager/pkg/planner"
	"github.com/nergy-se/energymanager/pkg/store"
	"github.com/nergy-se/energymanager/pkg/webserver"
	"github.com/sirupsen/logrus"
)

const modbusTimeout = 5 * time.Second

func (a *App) setup(ctx context.Context) error {
	cfg := a.config
	a.clock = clock.Real{}
	if cfg.ReplayStart != "" {
		start, err := time.Parse(time.RFC3339, cfg.ReplayStart)
		if err != nil {
			return fmt.Errorf("error parsing ReplayStart: %w", err)
		}
		a.replay = clock.NewFixed(start)
		a.clock = a.replay
	}

	var file *replay.Replay
	if cfg.File != "" {
		var err error
		file, err = replay.Load(cfg.File, a.clock)
		if err != nil {
			return err
		}
	}

	devices := planner.Devices{}
	var err error

	devices.Battery, err = a.battery(ctx)
	if err != nil {
		return err
	}
	a.actuators.Battery = devices.Battery

	switch types.PriceType(cfg.Price.Type) {
	case types.PriceTypeAwattar:
		devices.Price = awattar.New(cfg.Price.URL, a.clock)
	case types.PriceTypeFile:
		devices.Price = file
	}

	switch types.PVType(cfg.PV.Type) {
	case types.PVTypeSolarprognose:
		devices.PV, err = solarprognose.New(cfg.PV.Solarprognose, a.clock)
		if err != nil {
			return err
		}
	case types.PVTypeFile:
		devices.PV = file
	}

	devices.House, err = house.NewConstant(cfg.House.KWhPerDay, a.clock)
	if err != nil {
		return err
	}

	var temp device.TemperatureSource
	switch types.TempType(cfg.Temp.Type) {
	case types.TempTypeOpenMeteo:
		temp, err = openmeteo.New(cfg.Temp.OpenMeteo, a.clock)
		if err != nil {
			return err
		}
	case types.TempTypeFile:
		temp = file
	}
	devices.Temp = temp

	switch types.BEVType(cfg.BEV.Type) {
	case types.BEVTypeDIY:
		car, err := bev.NewDIY(cfg.BEV.Address, cfg.BEV.Settings, a.clock)
		if err != nil {
			return err
		}
		devices.BEV = car
		a.actuators.BEV = car
	case types.BEVTypeDummy:
		car := bev.NewDummy(cfg.BEV.Settings, bev.DefaultState(), a.clock)
		devices.BEV = car
		a.actuators.BEV = car
	}

	if cfg.Heatpump.Enabled {
		ctrl, err := a.heatControl()
		if err != nil {
			return err
		}
		hp, err := heatpump.New(cfg.Heatpump.Settings, temp, ctrl, a.clock)
		if err != nil {
			return err
		}
		devices.Heatpump = hp
		a.actuators.Heatpump = hp
		a.actuators.Controller = ctrl
	}

	if types.MeterType(cfg.Meter.Type) == types.MeterTypeMbus {
		m, err := mbus.New(cfg.Meter.Device, cfg.Meter.Model, cfg.Meter.PrimaryID, a.clock)
		if err != nil {
			return err
		}
		a.actuators.Meter = m
	}

	a.planner, err = planner.New(planner.Config{
		Horizon:     cfg.Horizon,
		LoadHorizon: cfg.LoadHorizon,
		Guard:       cfg.Guard,
		Clock:       a.clock,
	}, devices)
	if err != nil {
		return err
	}
	a.guard = actuator.NewGuard(a.clock, a.alarms)

	if cfg.Database != "" {
		a.store, err = store.New(cfg.Database)
		if err != nil {
			return err
		}
	}

	if err := a.setupMQTT(ctx); err != nil {
		return err
	}

	if cfg.Listen != "" {
		var history webserver.History
		if a.store != nil {
			history = a.store
		}
		webserver.New(a.planner, a.alarms, history).Start(ctx, a.wg, cfg.Listen)
	}

	logrus.Infof("started %s", a)
	return nil
}

func (a *App) battery(ctx context.Context) (device.Battery, error) {
	cfg := a.config.Battery
	switch types.BatteryType(cfg.Type) {
	case types.BatteryTypeKostalBYD:
		client := modbusclient.NewTCP(cfg.Address, byte(cfg.UnitID), modbusTimeout)
		return kostalbyd.New(ctx, client, cfg.Settings, nil)
	case types.BatteryTypeDummy:
		return dummy.NewBattery(cfg.Capacity, cfg.SOC, cfg.Settings), nil
	}
	return nil, fmt.Errorf("%w: unknown battery type %q", device.ErrInvalidSettings, cfg.Type)
}

func (a *App) heatControl() (controller.Controller, error) {
	cfg := a.config.Heatpump
	switch types.HeatControlType(cfg.Control) {
	case types.HeatControlTypeThermiaGenesis:
		client := modbusclient.NewTCP(cfg.Address, byte(cfg.SlaveID), modbusTimeout)
		return thermiagenesis.New(client, cfg.Readonly, cfg.Thermiagenesis), nil
	case types.HeatControlTypeHogforsGST:
		client := modbusclient.NewTCP(cfg.Address, byte(cfg.SlaveID), modbusTimeout)
		return hogforsgst.New(client), nil
	case types.HeatControlTypeDummy:
		return ctrldummy.New(), nil
	case "":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown heat control type %q", device.ErrInvalidSettings, cfg.Control)
}

func (a *App) setupMQTT(ctx context.Context) error {
	cfg := a.config.MQTT
	var publisher mqtt.Publisher
	switch {
	case cfg.Listen != "":
		server, err := mqtt.Start(ctx, a.wg, cfg.Listen)
		if err != nil {
			return fmt.Errorf("error starting mqtt broker: %w", err)
		}
		publisher = mqtt.NewInline(server)
	case cfg.Broker != "":
		client, err := mqtt.NewClient(cfg.Broker, cfg.ClientID, cfg.Username, cfg.Password)
		if err != nil {
			return err
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			<-ctx.Done()
			client.Disconnect()
		}()
		publisher = client
	default:
		return nil
	}
	a.telemetry = mqtt.NewTelemetry(publisher, cfg.Prefix)
	return nil
}
