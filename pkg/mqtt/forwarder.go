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

package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/board"
)

const (
	forwardQueueSize = 256
)

// Board is the part of the board used by the forwarder.
type Board interface {
	Observe(fn func(board.Event)) context.CancelFunc
	SetMode(address string, mode board.Mode) error
	DigitalWrite(address string, value int) error
	AnalogWrite(address string, value int) error
}

// Connection publishes to topics relative to a prefix.
type Connection interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Topic(relative string) string
}

// EventMessage is the JSON payload of a published board event.
type EventMessage struct {
	Name  string    `json:"name"`
	Value int       `json:"value"`
	Data  []int     `json:"data,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
	Seq   uint64    `json:"seq"`
}

// NewEventMessage converts a board event into its message.
func NewEventMessage(ev board.Event) EventMessage {
	msg := EventMessage{
		Name:  ev.Name,
		Value: ev.Value,
		Time:  ev.Time,
		Seq:   ev.Seq,
	}
	if ev.Data != nil {
		msg.Data = make([]int, len(ev.Data))
		for i, v := range ev.Data {
			msg.Data[i] = int(v)
		}
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// Forwarder publishes board events and executes pin commands.
type Forwarder struct {
	log   zerolog.Logger
	board Board
	conn  Connection
}

// NewForwarder creates a forwarder between the given board and connection.
func NewForwarder(log zerolog.Logger, b Board, conn Connection) *Forwarder {
	return &Forwarder{
		log:   log.With().Str("component", "mqtt-forwarder").Logger(),
		board: b,
		conn:  conn,
	}
}

// CommandTopic returns the (relative) topic pattern of pin commands.
func CommandTopic() string {
	return "pins/+/+/set"
}

// Run publishes all board events until the given context is canceled.
// Events are dropped when the broker cannot keep up.
func (f *Forwarder) Run(ctx context.Context) error {
	queue := make(chan board.Event, forwardQueueSize)
	cancel := f.board.Observe(func(ev board.Event) {
		select {
		case queue <- ev:
		default:
			eventsDroppedTotal.Inc()
		}
	})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-queue:
			if err := f.publish(ctx, ev); err != nil {
				f.log.Debug().Err(err).Str("event", ev.Name).Msg("Failed to publish event")
			}
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, ev board.Event) error {
	payload, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		return errors.Wrap(err, "marshal failed")
	}
	return f.conn.Publish(ctx, f.conn.Topic("events/"+ev.Name), payload)
}

// HandleCommand executes a pin command received on the given topic.
// Topics have the form <prefix>/pins/<pin>/<digital|analog|mode>/set.
func (f *Forwarder) HandleCommand(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[len(parts)-1] != "set" || parts[len(parts)-4] != "pins" {
		commandErrorsTotal.WithLabelValues("unknown").Inc()
		f.log.Debug().Str("topic", topic).Msg("Ignoring unknown command topic")
		return
	}
	pin := parts[len(parts)-3]
	command := parts[len(parts)-2]
	value := strings.TrimSpace(string(payload))
	if err := f.execute(pin, command, value); err != nil {
		commandErrorsTotal.WithLabelValues(command).Inc()
		f.log.Warn().Err(err).
			Str("pin", pin).
			Str("command", command).
			Str("value", value).
			Msg("Pin command failed")
	}
}

func (f *Forwarder) execute(pin, command, value string) error {
	switch command {
	case "digital":
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		level := board.Low
		if on {
			level = board.High
		}
		return f.board.DigitalWrite(pin, level)
	case "analog":
		duty, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(board.ErrInvalidArgument, "invalid duty '%s'", value)
		}
		return f.board.AnalogWrite(pin, duty)
	case "mode":
		mode, err := board.ParseMode(value)
		if err != nil {
			return err
		}
		return f.board.SetMode(pin, mode)
	default:
		return errors.Wrapf(board.ErrInvalidArgument, "unknown command '%s'", command)
	}
}

func parseBool(str string) (bool, error) {
	switch strings.ToLower(str) {
	case "1", "t", "true", "on", "yes", "high":
		return true, nil
	case "0", "f", "false", "off", "no", "low":
		return false, nil
	}
	return false, errors.Wrapf(board.ErrInvalidArgument, "invalid bool value '%s'", str)
}
