package mqtt

import (
	"context"
	"sync"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Start runs an embedded broker on address until ctx is done.
func Start(ctx context.Context, wg *sync.WaitGroup, address string) (*mqttv2.Server, error) {
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	// Allow all connections.
	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: address})
	err := server.AddListener(tcp)
	if err != nil {
		return server, err
	}

	err = server.Serve()
	if err != nil {
		return server, err
	}

	wg.Add(1)
	go func() {
		<-ctx.Done()
		server.Close()
		wg.Done()
	}()
	return server, nil
}

// Inline publishes through the embedded broker.
type Inline struct {
	server *mqttv2.Server
}

func NewInline(server *mqttv2.Server) *Inline {
	return &Inline{server: server}
}

func (i *Inline) Publish(topic string, payload []byte, retain bool) error {
	return i.server.Publish(topic, payload, retain, 0)
}
