package main

import (
	"context"
	"flag"
	"os/signal"
	"sync"
	"syscall"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/nergy-se/energymanager/pkg/mqtt"
	"github.com/sirupsen/logrus"
)

// mqtt runs a broker and logs everything published below the topic prefix.
func main() {
	address := flag.String("addr", ":1883", "listen address")
	prefix := flag.String("prefix", "energymanager", "topic prefix to log")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wg := &sync.WaitGroup{}
	server, err := mqtt.Start(ctx, wg, *address)
	if err != nil {
		logrus.Fatal(err)
	}

	err = server.Subscribe(*prefix+"/#", 1, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
		logrus.WithField("topic", pk.TopicName).Info(string(pk.Payload))
	})
	if err != nil {
		logrus.Fatal(err)
	}

	wg.Wait()
}
