// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

// Package mqtt connects the board to an MQTT broker.
// Board events are published as JSON, pin commands are received
// through subscriptions.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const (
	mqttPublishTimeout = time.Millisecond * 200
	mqttDisconnectWait = 250 // ms
	// DefaultTopicPrefix is the topic prefix used when none is configured.
	DefaultTopicPrefix = "pcduino"
)

// Config of the MQTT connection.
type Config struct {
	// BrokerAddress is the host:port of the broker.
	BrokerAddress string
	// ClientID of the connection.
	ClientID string
	// TopicPrefix is prepended to all topics.
	TopicPrefix string
	// ForwardLogs enables publishing of log lines.
	ForwardLogs bool
}

// IsEnabled returns true when a broker is configured.
func (c Config) IsEnabled() bool {
	return c.BrokerAddress != ""
}

// Validate the config.
func (c Config) Validate() error {
	var err error
	if c.BrokerAddress != "" && !strings.Contains(c.BrokerAddress, ":") {
		multierr.AppendInto(&err, fmt.Errorf("broker address '%s' must be host:port", c.BrokerAddress))
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		multierr.AppendInto(&err, fmt.Errorf("topic prefix '%s' must not contain wildcards", c.TopicPrefix))
	}
	return err
}

func (c Config) prefix() string {
	prefix := strings.Trim(c.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix
}

// Client is a connection to an MQTT broker.
type Client struct {
	log    zerolog.Logger
	config Config
	mutex  sync.Mutex
	client mqttapi.Client
	lost   chan error
}

// NewClient prepares a client; it does not connect yet.
func NewClient(log zerolog.Logger, conf Config) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.ClientID == "" {
		conf.ClientID = "pcduino-io"
	}
	return &Client{
		log:    log.With().Str("component", "mqtt").Logger(),
		config: conf,
		lost:   make(chan error, 1),
	}, nil
}

// Connect to the broker.
func (c *Client) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Prepare MQTT client options
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + c.config.BrokerAddress).
		SetClientID(c.config.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(mqttapi.Client, mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	opts.SetConnectionLostHandler(func(_ mqttapi.Client, err error) {
		connectionsLostTotal.Inc()
		select {
		case c.lost <- err:
		default:
		}
	})

	// Connect client
	client := mqttapi.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt: %w", err)
	}
	// Drop stale connection lost notifications
	select {
	case <-c.lost:
	default:
	}
	c.client = client
	c.log.Info().Str("broker", c.config.BrokerAddress).Msg("Connected to MQTT broker")
	return nil
}

// Lost returns a channel that receives an error when the connection is lost.
func (c *Client) Lost() <-chan error {
	return c.lost
}

// Topic returns the full topic for the given relative topic.
func (c *Client) Topic(relative string) string {
	return c.config.prefix() + "/" + strings.TrimPrefix(relative, "/")
}

// Publish a payload to the given (full) topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mutex.Lock()
	client := c.client
	c.mutex.Unlock()
	if client == nil {
		return errors.New("not connected")
	}

	token := client.Publish(topic, 0, false, payload)
	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		publishFailuresTotal.Inc()
		return fmt.Errorf("failed to deliver MQTT message to '%s' in time", topic)
	}
	if err := token.Error(); err != nil {
		publishFailuresTotal.Inc()
		return errors.Wrapf(err, "publish to '%s' failed", topic)
	}
	messagesPublishedTotal.Inc()
	return nil
}

// Subscribe to the given (full) topic.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mutex.Lock()
	client := c.client
	c.mutex.Unlock()
	if client == nil {
		return errors.New("not connected")
	}

	token := client.Subscribe(topic, 0, func(_ mqttapi.Client, msg mqttapi.Message) {
		messagesReceivedTotal.Inc()
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", topic, token.Error())
	}
	return nil
}

// Close the connection.
func (c *Client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.client != nil {
		c.client.Disconnect(mqttDisconnectWait)
		c.client = nil
	}
}
