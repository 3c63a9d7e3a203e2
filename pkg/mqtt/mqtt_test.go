package mqtt

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/planner"
	"github.com/nergy-se/energymanager/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroker(t *testing.T, address string) *mqttv2.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	server, err := Start(ctx, wg, address)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return server
}

func subscribe(t *testing.T, server *mqttv2.Server, filter string) chan packets.Packet {
	t.Helper()
	ch := make(chan packets.Packet, 10)
	err := server.Subscribe(filter, 1, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
		ch <- pk
	})
	require.NoError(t, err)
	return ch
}

func receive(t *testing.T, ch chan packets.Packet) packets.Packet {
	t.Helper()
	select {
	case pk := <-ch:
		return pk
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	return packets.Packet{}
}

func testInfo() planner.Info {
	return planner.Info{
		Hour:        1717200000,
		PV:          3,
		BatterySOC:  80,
		BatteryFlow: 2,
		Price:       math.NaN(),
		Grid:        0,
		Temp:        math.NaN(),
		House:       1,
		Heatpump:    0,
		Restriction: device.RestrictionNoCharge,
	}
}

func TestInlinePublishPlan(t *testing.T) {
	server := startBroker(t, "127.0.0.1:18831")
	ch := subscribe(t, server, "energymanager/#")

	telemetry := NewTelemetry(NewInline(server), "energymanager")
	require.NoError(t, telemetry.PublishPlan(testInfo()))

	pk := receive(t, ch)
	assert.Equal(t, "energymanager/plan", pk.TopicName)
	m := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(pk.Payload, &m))
	assert.Equal(t, 80.0, m["battery_soc"])
	assert.Equal(t, "no charge", m["restriction"])
	assert.NotContains(t, m, "price")
}

func TestClientPublishState(t *testing.T) {
	server := startBroker(t, "127.0.0.1:18832")
	ch := subscribe(t, server, "home/state")

	client, err := NewClient("tcp://127.0.0.1:18832", "test", "", "")
	require.NoError(t, err)
	defer client.Disconnect()

	telemetry := NewTelemetry(client, "home")
	require.NoError(t, telemetry.PublishState(state.State{GridKW: state.Pointer(-0.4)}))

	pk := receive(t, ch)
	assert.JSONEq(t, `{"gridKw":-0.4}`, string(pk.Payload))
}
