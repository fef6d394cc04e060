package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/config"
)

// Subscriber holds the persistent connection the trackers push over and
// feeds every payload to the pipeline. Reconnects are left to the paho
// client; the subscription is restored by the OnConnect handler.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	handler func(payload []byte)
}

func NewSubscriber(cfg *config.Config, handler func(payload []byte)) *Subscriber {
	s := &Subscriber{topic: cfg.MQTTTopic, handler: handler}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost, reconnecting")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			if token := c.Subscribe(s.topic, 1, s.onMessage); token.Wait() && token.Error() != nil {
				log.WithError(token.Error()).Error("mqtt subscribe failed")
			}
		})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect establishes the broker connection; the subscription happens in
// the OnConnect handler so it survives reconnects.
func (s *Subscriber) Connect() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.WithField("topic", s.topic).Info("subscribed to telemetry stream")
	return nil
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handler(msg.Payload())
}

// Stop unsubscribes and drops the connection. Call before closing the
// dispatcher so no payload arrives after the queues close.
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Warn("mqtt unsubscribe failed")
	}
	s.client.Disconnect(250)
}
