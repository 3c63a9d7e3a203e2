package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Client publishes to an external broker.
type Client struct {
	client paho.Client
}

func NewClient(broker, clientID, username, password string) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logrus.Warnf("mqtt: connection lost: %s", err)
	})

	c := &Client{client: paho.NewClient(opts)}
	token := c.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		logrus.Warnf("mqtt: %s not reachable yet, retrying in background", broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return c, nil
}

func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	token := c.client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: timeout publishing %s", topic)
	}
	return token.Error()
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
