package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nergy-se/energymanager/pkg/actuator"
	"github.com/nergy-se/energymanager/pkg/api/v1/config"
	"github.com/nergy-se/energymanager/pkg/clock"
	ctrldummy "github.com/nergy-se/energymanager/pkg/controller/dummy"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/device/dummy"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/nergy-se/energymanager/pkg/mqtt"
	"github.com/nergy-se/energymanager/pkg/planner"
	"github.com/nergy-se/energymanager/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic  string
	retain bool
}

type fakePublisher struct {
	messages []published
	sync.Mutex
}

func (f *fakePublisher) Publish(topic string, payload []byte, retain bool) error {
	f.Lock()
	f.messages = append(f.messages, published{topic: topic, retain: retain})
	f.Unlock()
	return nil
}

func (f *fakePublisher) topics() []string {
	f.Lock()
	defer f.Unlock()
	topics := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		topics = append(topics, m.topic)
	}
	return topics
}

type recordingHeatpump struct {
	*dummy.Load
	applied []device.HeatpumpMode
}

func (r *recordingHeatpump) SetMode(ctx context.Context, mode device.HeatpumpMode) error {
	r.applied = append(r.applied, mode)
	return nil
}

type testApp struct {
	*App
	clock     *clock.Fixed
	battery   *dummy.Battery
	bev       *dummy.Load
	heatpump  *recordingHeatpump
	publisher *fakePublisher
}

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	h := t0.Unix()
	clk := clock.NewFixed(t0.Add(5 * time.Minute))

	bat := dummy.NewBattery(10, 50, device.DefaultBatterySettings())
	bev := dummy.NewLoad(hourseries.Series{h: 2.2})
	hp := &recordingHeatpump{Load: dummy.NewLoad(hourseries.Series{h: 1})}
	hp.SetModes(map[int64]device.HeatpumpMode{h: device.HeatpumpDisabled})

	p, err := planner.New(planner.Config{Clock: clk}, planner.Devices{
		Battery:  bat,
		Price:    dummy.Constant(h, 48, 80),
		PV:       dummy.Constant(h, 48, 0),
		House:    dummy.Constant(h, 48, 0.5),
		BEV:      bev,
		Heatpump: hp,
	})
	require.NoError(t, err)

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pub := &fakePublisher{}
	a := New(&config.CliConfig{PollInterval: 5 * time.Second})
	a.clock = clk
	a.planner = p
	a.guard = actuator.NewGuard(clk, a.alarms)
	a.store = st
	a.telemetry = mqtt.NewTelemetry(pub, "em")
	a.actuators = Actuators{
		Battery:  bat,
		BEV:      bev,
		Heatpump: hp,
	}
	return &testApp{App: a, clock: clk, battery: bat, bev: bev, heatpump: hp, publisher: pub}
}

func TestCycle(t *testing.T) {
	a := newTestApp(t)
	ctx := context.TODO()

	a.cycle(ctx)

	plan := a.Planner().Current()
	require.NotNil(t, plan)
	now := a.clock.Now()
	assert.Equal(t, []device.Mode{plan.Mode(now)}, a.battery.Modes())
	assert.Equal(t, []float64{2.2}, a.bev.Charges())
	assert.Equal(t, []device.HeatpumpMode{device.HeatpumpDisabled}, a.heatpump.applied)
	assert.Equal(t, []string{"em/state", "em/plan"}, a.publisher.topics())

	info, err := a.store.Get(ctx, t0.Unix())
	require.NoError(t, err)
	assert.Equal(t, 80.0, info.Price)
	assert.Equal(t, 2.2, info.BEV)

	// same hour, state not due yet
	a.clock.Add(30 * time.Second)
	a.cycle(ctx)
	assert.Len(t, a.battery.Modes(), 2)
	assert.Equal(t, []float64{2.2, 2.2}, a.bev.Charges())
	assert.Len(t, a.publisher.topics(), 2)

	a.clock.Add(time.Minute)
	a.cycle(ctx)
	assert.Equal(t, []string{"em/state", "em/plan", "em/state"}, a.publisher.topics())
}

func TestCycleSkipsHourBoundary(t *testing.T) {
	a := newTestApp(t)
	a.clock.Set(t0.Add(time.Hour - 5*time.Second))

	a.cycle(context.TODO())

	assert.Nil(t, a.Planner().Current())
	assert.Empty(t, a.battery.Modes())
	assert.Empty(t, a.bev.Charges())
	assert.Empty(t, a.publisher.topics())
}

func TestCycleMissingData(t *testing.T) {
	a := newTestApp(t)
	// no prices after the first two days
	a.clock.Set(t0.Add(72 * time.Hour))

	a.cycle(context.TODO())

	assert.Nil(t, a.Planner().Current())
	assert.Empty(t, a.battery.Modes())
}

func TestReading(t *testing.T) {
	a := newTestApp(t)
	a.battery.SetReading(device.PowerReading{BatteryKW: 1, GridKW: -0.5, Time: t0})

	r := a.reading(context.TODO())
	require.NotNil(t, r)
	assert.Equal(t, 1.0, r.BatteryKW)
	assert.Equal(t, -0.5, r.GridKW)

	a.actuators.Meter = meterFunc(func(ctx context.Context) (float64, error) {
		return 2, nil
	})
	r = a.reading(context.TODO())
	require.NotNil(t, r)
	assert.Equal(t, 1.0, r.BatteryKW)
	assert.Equal(t, 2.0, r.GridKW)
}

type meterFunc func(ctx context.Context) (float64, error)

func (f meterFunc) GridKW(ctx context.Context) (float64, error) {
	return f(ctx)
}

func TestSyncAlarms(t *testing.T) {
	a := newTestApp(t)
	c := ctrldummy.New()
	a.alarms.Add("other")

	c.AddAlarm("low brine")
	a.syncAlarms(c)
	assert.Equal(t, []string{"other", "low brine"}, a.Alarms().List())

	// already active alarms are not added twice
	a.syncAlarms(c)
	assert.Equal(t, []string{"other", "low brine"}, a.Alarms().List())

	c.ResetAlarms()
	a.syncAlarms(c)
	assert.Equal(t, []string{"other"}, a.Alarms().List())
}

func TestCalculateNextDelay(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		expected time.Duration
	}{
		{
			name:     "between ticks",
			now:      time.Date(2024, 1, 1, 12, 0, 3, 0, time.UTC),
			interval: 5 * time.Second,
			expected: 2 * time.Second,
		},
		{
			name:     "on a tick",
			now:      time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC),
			interval: 5 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "minute",
			now:      time.Date(2024, 1, 1, 12, 0, 45, 0, time.UTC),
			interval: time.Minute,
			expected: 15 * time.Second,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateNextDelay(tt.now, tt.interval))
		})
	}
}

func TestNextDelayAdvancesReplayClock(t *testing.T) {
	a := newTestApp(t)
	a.replay = a.clock
	a.config.ReplayStep = time.Hour

	d := a.nextDelay()
	assert.Equal(t, 5*time.Second, d)
	assert.Equal(t, t0.Add(time.Hour+5*time.Minute), a.clock.Now())
}
