package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/nergy-se/energymanager/pkg/planner"
	"github.com/nergy-se/energymanager/pkg/state"
)

type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
}

// Telemetry publishes the planning info and state under a topic prefix.
type Telemetry struct {
	publisher Publisher
	prefix    string
}

func NewTelemetry(publisher Publisher, prefix string) *Telemetry {
	return &Telemetry{publisher: publisher, prefix: prefix}
}

// PublishPlan publishes the planning info of one hour retained on <prefix>/plan.
func (t *Telemetry) PublishPlan(info planner.Info) error {
	return t.publish("plan", info.Map(), true)
}

func (t *Telemetry) PublishState(s state.State) error {
	return t.publish("state", s.Map(), false)
}

func (t *Telemetry) publish(topic string, v interface{}, retain bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic = t.prefix + "/" + topic
	if err := t.publisher.Publish(topic, b, retain); err != nil {
		return fmt.Errorf("error publishing %s: %w", topic, err)
	}
	return nil
}
