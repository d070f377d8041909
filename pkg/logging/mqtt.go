// Copyright 2018 Ewout Prangsma
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

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/duinoio/pcduino-io/pkg/metrics"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTWriter is a log writer that forwards log lines to an MQTT topic.
// Lines written while forwarding is disabled are kept in a bounded queue,
// the oldest lines are dropped first.
type MQTTWriter interface {
	io.Writer
	Enable(enable bool)
	SetDestination(topic string, publisher Publisher)
}

type mqttLogger struct {
	mutex     sync.Mutex
	queue     chan []byte
	changed   chan struct{}
	topic     string
	publisher Publisher
	enable    bool
}

const (
	mqttQueueSize      = 512
	mqttPublishTimeout = time.Second
)

var (
	// Total number of log lines published to MQTT
	linesPublishedTotal = metrics.MustRegisterCounter("logging",
		"mqtt_lines_published_total",
		"Total number of log lines published to MQTT")
	// Total number of log lines dropped before reaching MQTT
	linesDroppedTotal = metrics.MustRegisterCounter("logging",
		"mqtt_lines_dropped_total",
		"Total number of log lines dropped before reaching MQTT")
)

// NewMQTTWriter creates a writer that publishes until the given context is canceled.
func NewMQTTWriter(ctx context.Context) MQTTWriter {
	l := &mqttLogger{
		queue:   make(chan []byte, mqttQueueSize),
		changed: make(chan struct{}, 1),
	}
	go l.run(ctx)
	return l
}

func (l *mqttLogger) Write(p []byte) (n int, err error) {
	line := bytes.TrimSpace(p)
	if len(line) == 0 {
		return len(p), nil
	}
	// The caller may reuse p
	msg := append([]byte(nil), line...)
	for {
		select {
		case l.queue <- msg:
			return len(p), nil
		default:
			select {
			case <-l.queue:
				linesDroppedTotal.Inc()
			default:
			}
		}
	}
}

func (l *mqttLogger) Enable(enable bool) {
	l.mutex.Lock()
	l.enable = enable
	l.mutex.Unlock()
	l.notify()
}

func (l *mqttLogger) SetDestination(topic string, publisher Publisher) {
	l.mutex.Lock()
	l.topic = topic
	l.publisher = publisher
	l.mutex.Unlock()
	l.notify()
}

func (l *mqttLogger) notify() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

// destination returns the publisher & topic, or nil when forwarding
// is disabled.
func (l *mqttLogger) destination() (Publisher, string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !l.enable || l.topic == "" {
		return nil, ""
	}
	return l.publisher, l.topic
}

type logMsg struct {
	Message string `json:"message"`
}

// payload returns the line as is when it is a JSON object (zerolog output),
// otherwise it is wrapped in a logMsg.
func payload(line []byte) ([]byte, error) {
	if line[0] == '{' && json.Valid(line) {
		return line, nil
	}
	return json.Marshal(logMsg{Message: string(line)})
}

func (l *mqttLogger) run(ctx context.Context) {
	for {
		publisher, topic := l.destination()
		if publisher == nil {
			select {
			case <-l.changed:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case line := <-l.queue:
			data, err := payload(line)
			if err != nil {
				linesDroppedTotal.Inc()
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, mqttPublishTimeout)
			if err := publisher.Publish(pubCtx, topic, data); err != nil {
				linesDroppedTotal.Inc()
			} else {
				linesPublishedTotal.Inc()
			}
			cancel()
		case <-l.changed:
		case <-ctx.Done():
			return
		}
	}
}
