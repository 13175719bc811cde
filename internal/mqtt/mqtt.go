// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mqtt publishes provider events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/signalbus"
)

const (
	DefaultClientID    = "locationd"
	DefaultTopicPrefix = "locationd"

	publishTimeout = 5 * time.Second
	quiesce        = 250
)

var (
	ErrNoBroker   = errors.New("no MQTT broker configured")
	ErrInvalidQoS = errors.New("MQTT QoS must be 0, 1 or 2")
)

// Config holds the broker connection and topic settings.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// Publisher sends every observed event as a JSON encoded signalbus.Message to
// <prefix>/<source>/<kind>.
type Publisher struct {
	client paho.Client
	config Config
	log    *logger.Logger
}

// New returns a Publisher for a new paho client. The client is not connected yet.
func New(config Config, log *logger.Logger) (*Publisher, error) {
	if config.Broker == "" {
		return nil, ErrNoBroker
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	log = logger.OrDiscard(log)

	opts := paho.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info("connected to MQTT broker", "broker", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("lost connection to MQTT broker", logger.Err(err))
	})

	return NewWithClient(paho.NewClient(opts), config, log)
}

// NewWithClient returns a Publisher using an existing client.
func NewWithClient(client paho.Client, config Config, log *logger.Logger) (*Publisher, error) {
	if config.QoS > 2 {
		return nil, ErrInvalidQoS
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}
	return &Publisher{client: client, config: config, log: logger.OrDiscard(log)}, nil
}

// Connect connects to the broker. With connect retry enabled the client keeps trying in the background
// once ctx is done.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to connect to MQTT broker: %w", ctx.Err())
	}
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(quiesce)
}

// Attach publishes every event of bus until the returned function is called.
func (p *Publisher) Attach(bus *signalbus.Bus) func() {
	return bus.Subscribe(p.Publish)
}

// Topic returns the topic e is published to.
func (p *Publisher) Topic(e signalbus.Event) string {
	return p.config.TopicPrefix + "/" + e.Source + "/" + e.Kind.String()
}

// Publish sends e without waiting for the broker. Events are dropped while the connection is down.
func (p *Publisher) Publish(e signalbus.Event) {
	if !p.client.IsConnectionOpen() {
		return
	}
	payload, err := json.Marshal(e.Message())
	if err != nil {
		p.log.Error("failed to encode MQTT message", logger.Err(err))
		return
	}

	topic := p.Topic(e)
	token := p.client.Publish(topic, p.config.QoS, p.config.Retain, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.log.Debug("MQTT publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("failed to publish MQTT message", "topic", topic, logger.Err(err))
		}
	}()
}
