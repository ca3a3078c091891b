package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Host        string
	Port        int
	User        string
	Pass        string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTPublisher mirrors bus events onto an MQTT broker, one topic per camera
// and event type.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTPublisher connects to the broker described by opts.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	co := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if opts.ClientID != "" {
		co.SetClientID(opts.ClientID)
	}
	if opts.User != "" && opts.Pass != "" {
		co.SetUsername(opts.User)
		co.SetPassword(opts.Pass)
	}
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s:%d: %w", opts.Host, opts.Port, token.Error())
	}

	prefix := opts.TopicPrefix
	if prefix == "" {
		prefix = "responsiveboxes"
	}
	return newMQTTPublisher(client, prefix, opts.QoS), nil
}

func newMQTTPublisher(client mqtt.Client, prefix string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, qos: qos}
}

// Topic returns the topic an event is published on:
// <prefix>/<camera>/<type>, or <prefix>/<type> for process-wide events.
func Topic(prefix string, e Event) string {
	if e.Camera == "" {
		return prefix + "/" + string(e.Type)
	}
	return prefix + "/" + e.Camera + "/" + string(e.Type)
}

// Publish sends e to the broker and waits for the delivery token.
func (p *MQTTPublisher) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	token := p.client.Publish(Topic(p.prefix, e), p.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out publishing %s", e.Type)
	}
	return token.Error()
}

// Run publishes events from bus until ctx is done, then disconnects.
func (p *MQTTPublisher) Run(ctx context.Context, bus *Bus) {
	ch, cancel := bus.Subscribe(64)
	defer cancel()
	defer p.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := p.Publish(e); err != nil {
				log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to publish to MQTT")
			}
		}
	}
}
