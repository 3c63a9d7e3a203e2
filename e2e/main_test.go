package e2e

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nergy-se/energymanager/pkg/api/v1/config"
	"github.com/nergy-se/energymanager/pkg/app"
	"github.com/nergy-se/energymanager/pkg/controller/thermiagenesis"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/heatpump"
	"github.com/nergy-se/energymanager/pkg/device/openmeteo"
	"github.com/nergy-se/energymanager/pkg/device/solarprognose"
	"github.com/nergy-se/energymanager/pkg/modbusclient"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
)

const (
	kostalAddr  = "127.0.0.1:15101"
	thermiaAddr = "127.0.0.1:15102"
	apiAddr     = "127.0.0.1:18080"

	regSOC        = 210
	regReady      = 208
	regVoltage    = 216
	regPowermeter = 252
	regSetpoint   = 1034
	regCapacity   = 1068
)

var start = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func setFloat(serv *mbserver.Server, reg int, v float64) {
	b := modbusclient.EncodeFloat32(v)
	serv.HoldingRegisters[reg] = binary.BigEndian.Uint16(b[:2])
	serv.HoldingRegisters[reg+1] = binary.BigEndian.Uint16(b[2:])
}

func getFloat(serv *mbserver.Server, reg int) float64 {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[:2], serv.HoldingRegisters[reg])
	binary.BigEndian.PutUint16(b[2:], serv.HoldingRegisters[reg+1])
	return modbusclient.DecodeFloat32(b)
}

// forecasts serves flat prices, a midday pv bump and 5°C for three days around start.
func forecasts(t *testing.T) *httptest.Server {
	from := start.Add(-48 * time.Hour)
	hours := 5 * 24
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/marketdata":
			data := make([]string, 0, hours)
			for i := 0; i < hours; i++ {
				ts := from.Add(time.Duration(i) * time.Hour).Unix()
				data = append(data, fmt.Sprintf(`{"start_timestamp":%d000,"end_timestamp":%d000,"marketprice":80,"unit":"Eur/MWh"}`, ts, ts+3600))
			}
			fmt.Fprintf(w, `{"object":"list","data":[%s]}`, strings.Join(data, ","))
		case r.URL.Path == "/solar":
			data := make(map[string][]float64, hours)
			for i := 0; i < hours; i++ {
				ts := from.Add(time.Duration(i) * time.Hour)
				kw := 0.0
				if ts.Hour() >= 9 && ts.Hour() < 16 {
					kw = 3
				}
				data[strconv.FormatInt(ts.Unix()+3600, 10)] = []float64{kw, 0}
			}
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"status": 0, "data": data}))
		case r.URL.Path == "/meteo":
			times := make([]string, 0, hours)
			temps := make([]float64, 0, hours)
			for i := 0; i < hours; i++ {
				times = append(times, from.Add(time.Duration(i)*time.Hour).Format("2006-01-02T15:04"))
				temps = append(temps, 5)
			}
			resp := map[string]interface{}{
				"hourly": map[string]interface{}{"time": times, "temperature_2m": temps},
			}
			assert.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newConfig(url string) *config.CliConfig {
	hp := heatpump.DefaultSettings()
	hp.LinCoef = 0.5
	hp.QuadCoef = 0.01
	return &config.CliConfig{
		LogLevel:     "debug",
		PollInterval: time.Hour,
		Horizon:      24 * time.Hour,
		LoadHorizon:  48 * time.Hour,
		Guard:        10 * time.Second,
		Listen:       apiAddr,
		ReplayStart:  start.Format(time.RFC3339),
		ReplayStep:   time.Hour,
		Battery: config.BatteryConfig{
			Type:     "kostalbyd",
			Address:  kostalAddr,
			UnitID:   71,
			Settings: device.DefaultBatterySettings(),
		},
		Price: config.PriceConfig{Type: "awattar", URL: url},
		PV: config.PVConfig{
			Type: "solarprognose",
			Solarprognose: solarprognose.Config{
				URL:         url + "/solar",
				AccessToken: "token",
				PlantID:     1,
				Factor:      1,
				Refresh:     3 * time.Hour,
			},
		},
		House: config.HouseConfig{KWhPerDay: 12},
		Temp: config.TempConfig{
			Type: "openmeteo",
			OpenMeteo: openmeteo.Config{
				URL:       url + "/meteo",
				Latitude:  59.3,
				Longitude: 18.1,
				Refresh:   3 * time.Hour,
			},
		},
		Heatpump: config.HeatpumpConfig{
			Enabled:  true,
			Settings: hp,
			Control:  "thermiagenesis",
			Address:  thermiaAddr,
			SlaveID:  1,
			Thermiagenesis: thermiagenesis.Settings{
				HotWaterNormalStart: 45,
				HotWaterNormalStop:  50,
				HotWaterBoostStart:  52,
				HotWaterBoostStop:   58,
			},
		},
	}
}

func getJSON(t *testing.T, path string, v interface{}) int {
	resp, err := http.Get("http://" + apiAddr + path)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestPlanAndDispatch(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)

	srv := forecasts(t)
	defer srv.Close()

	kostal := mbserver.NewServer()
	setFloat(kostal, regCapacity, 10000)
	setFloat(kostal, regSOC, 60)
	setFloat(kostal, regReady, 1)
	setFloat(kostal, regVoltage, 400)
	setFloat(kostal, regPowermeter, 0)
	// sentinel, left alone when the battery is not commanded
	setFloat(kostal, regSetpoint, 12345)
	require.NoError(t, kostal.ListenTCP(kostalAddr))
	defer kostal.Close()

	thermia := mbserver.NewServer()
	thermia.InputRegisters[9] = 3500  // forward 35°C
	thermia.InputRegisters[13] = 500  // outdoor 5°C
	thermia.InputRegisters[121] = 210 // indoor 21°C
	require.NoError(t, thermia.ListenTCP(thermiaAddr))
	defer thermia.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a := app.New(newConfig(srv.URL))
	require.NoError(t, a.Start(ctx))
	defer func() {
		cancel()
		a.Wait()
	}()

	st := struct {
		Planned  bool     `json:"planned"`
		Status   string   `json:"status"`
		SOC      float64  `json:"soc"`
		Capacity float64  `json:"capacity"`
		Hours    int      `json:"hours"`
		Alarms   []string `json:"alarms"`
	}{}
	assert.Eventually(t, func() bool {
		return getJSON(t, "/api/status", &st) == http.StatusOK && st.Planned
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "battery,pv,price,temp,heatpump,house,bev", st.Status)
	assert.InDelta(t, 60, st.SOC, 1e-6)
	assert.InDelta(t, 10, st.Capacity, 1e-6)
	assert.Equal(t, 24, st.Hours)
	assert.Empty(t, st.Alarms)

	plan := a.Planner().Current()
	require.NotNil(t, plan)
	mode := plan.Mode(start)
	expected := 12345.0
	if kw, ok := mode.Setpoint(); ok {
		expected = 0
		if kw != 0 {
			expected = -kw * 1000
		}
	}
	assert.Eventually(t, func() bool {
		return getFloat(kostal, regSetpoint) == float64(float32(expected))
	}, 5*time.Second, 50*time.Millisecond, "mode %s", mode)

	// flat prices keep the heat pump in normal mode
	assert.Equal(t, device.HeatpumpNormal, plan.HeatpumpMode(start))
	assert.Eventually(t, func() bool {
		return thermia.Coils[8] == 1 && thermia.Coils[9] == 1 &&
			thermia.HoldingRegisters[22] == 4500 && thermia.HoldingRegisters[23] == 5000
	}, 5*time.Second, 50*time.Millisecond)

	info := map[string]interface{}{}
	assert.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("/api/plan/%d", start.Unix()), &info))
	assert.Equal(t, 80.0, info["price"])
	assert.Equal(t, 3.0, info["pv"])
}
