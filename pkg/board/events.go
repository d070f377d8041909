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

package board

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-pubsub"
)

const (
	// EventConnect is published when the board is connected.
	EventConnect = "connect"
	// EventReady is published when the board is ready for use.
	EventReady = "ready"
	// EventError is published for transport level failures.
	EventError = "error"
)

// AnalogReadEvent returns the name of the event carrying samples of the
// given analog channel.
func AnalogReadEvent(channel int) string {
	return fmt.Sprintf("analog-read-%d", channel)
}

// DigitalReadEvent returns the name of the event carrying samples of the
// pin with given index.
func DigitalReadEvent(index int) string {
	return fmt.Sprintf("digital-read-%d", index)
}

// I2CReplyEvent returns the name of the event carrying replies of reads
// from the given address & register.
func I2CReplyEvent(address uint8, register int) string {
	return fmt.Sprintf("I2C-reply%d-%d", address, register)
}

// Event is a single notification published by the board.
type Event struct {
	// Name of the event
	Name string
	// Value of a pin sample
	Value int
	// Data of an I2C reply
	Data []byte
	// Err of an error event
	Err error
	// Time the event was published
	Time time.Time
	// Seq numbers events in publication order, starting at 1
	Seq uint64
}

const (
	// observerQueueSize is the number of events buffered per observer.
	observerQueueSize = 1024
)

type listener struct {
	id   uint64
	fn   func(Event)
	once bool
}

// observer receives all events, in order, on its own goroutine.
type observer struct {
	id       uint64
	fn       func(Event)
	firstSeq uint64
	queue    chan Event
	done     chan struct{}
	stopOnce sync.Once
}

func (o *observer) stop() {
	o.stopOnce.Do(func() { close(o.done) })
}

// offer queues the event without blocking.
func (o *observer) offer(ev Event) {
	select {
	case o.queue <- ev:
	default:
		observerEventsDroppedTotal.Inc()
	}
}

func (o *observer) run() {
	for {
		select {
		case <-o.done:
			return
		case ev := <-o.queue:
			o.call(ev)
		}
	}
}

func (o *observer) call(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			observerPanicsTotal.Inc()
		}
	}()
	o.fn(ev)
}

// emitter delivers events synchronously to named listeners and
// asynchronously to observers of all events.
// Observers are fed through a pubsub hop, which delivers out of order;
// dispatch restores the order using Event.Seq.
type emitter struct {
	mutex     sync.Mutex
	lastID    uint64
	lastSeq   uint64
	listeners map[string][]*listener
	observers []*observer
	now       func() time.Time

	pubMutex sync.RWMutex
	pub      *pubsub.PubSub
	closed   bool
	closing  chan struct{}

	dispatchMutex sync.Mutex
	nextSeq       uint64
	pending       map[uint64]Event
}

func newEmitter(now func() time.Time) *emitter {
	e := &emitter{
		listeners: make(map[string][]*listener),
		now:       now,
		pub:       pubsub.New(),
		closing:   make(chan struct{}),
		nextSeq:   1,
		pending:   make(map[uint64]Event),
	}
	e.pub.Sub(e.dispatch)
	go e.drainErrors()
	return e
}

// on registers a listener for events with given name.
func (e *emitter) on(name string, fn func(Event), once bool) context.CancelFunc {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.lastID++
	l := &listener{id: e.lastID, fn: fn, once: once}
	e.listeners[name] = append(e.listeners[name], l)
	return func() {
		e.remove(name, l.id)
	}
}

// remove the listener with given id.
func (e *emitter) remove(name string, id uint64) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	list := e.listeners[name]
	for i, l := range list {
		if l.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(e.listeners, name)
	} else {
		e.listeners[name] = list
	}
}

// emit delivers the event to all listeners in registration order,
// then hands it to the observers.
func (e *emitter) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}

	e.mutex.Lock()
	e.lastSeq++
	ev.Seq = e.lastSeq
	list := e.listeners[ev.Name]
	targets := make([]*listener, len(list))
	copy(targets, list)
	remaining := list[:0:0]
	for _, l := range list {
		if !l.once {
			remaining = append(remaining, l)
		}
	}
	if len(remaining) == 0 {
		delete(e.listeners, ev.Name)
	} else {
		e.listeners[ev.Name] = remaining
	}
	e.mutex.Unlock()

	for _, l := range targets {
		l.fn(ev)
	}
	eventsPublishedTotal.WithLabelValues(eventKind(ev.Name)).Inc()

	e.pubMutex.RLock()
	defer e.pubMutex.RUnlock()
	if !e.closed {
		e.pub.Pub(ev)
	}
}

// dispatch receives events from the pubsub in any order and offers them
// to the observers in Seq order.
func (e *emitter) dispatch(ev Event) {
	e.dispatchMutex.Lock()
	defer e.dispatchMutex.Unlock()

	select {
	case <-e.closing:
		return
	default:
	}
	e.pending[ev.Seq] = ev
	for {
		next, found := e.pending[e.nextSeq]
		if !found {
			return
		}
		delete(e.pending, e.nextSeq)
		e.nextSeq++

		e.mutex.Lock()
		targets := make([]*observer, 0, len(e.observers))
		for _, o := range e.observers {
			if next.Seq >= o.firstSeq {
				targets = append(targets, o)
			}
		}
		e.mutex.Unlock()
		for _, o := range targets {
			o.offer(next)
		}
	}
}

// drainErrors consumes subscriber failures of the pubsub until closed.
func (e *emitter) drainErrors() {
	for {
		select {
		case <-e.pub.Error():
			observerPanicsTotal.Inc()
		case <-e.closing:
			return
		}
	}
}

// observe registers a callback that receives all events published
// from now on, in publication order.
func (e *emitter) observe(fn func(Event)) context.CancelFunc {
	e.mutex.Lock()
	e.lastID++
	o := &observer{
		id:       e.lastID,
		fn:       fn,
		firstSeq: e.lastSeq + 1,
		queue:    make(chan Event, observerQueueSize),
		done:     make(chan struct{}),
	}
	e.observers = append(e.observers, o)
	e.mutex.Unlock()

	go o.run()
	return func() {
		e.leave(o.id)
		o.stop()
	}
}

// leave removes the observer with given id.
func (e *emitter) leave(id uint64) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for i, o := range e.observers {
		if o.id == id {
			e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
			return
		}
	}
}

// close stops delivery to observers and shuts down the pubsub.
// Listeners registered with on keep working.
func (e *emitter) close() {
	e.pubMutex.Lock()
	if e.closed {
		e.pubMutex.Unlock()
		return
	}
	e.closed = true
	close(e.closing)
	e.pub.Close()
	e.pubMutex.Unlock()

	e.mutex.Lock()
	observers := e.observers
	e.observers = nil
	e.mutex.Unlock()
	for _, o := range observers {
		o.stop()
	}
}

// listenerCount returns the number of listeners for given event name.
func (e *emitter) listenerCount(name string) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.listeners[name])
}

// eventKind reduces an event name to a label with low cardinality.
func eventKind(name string) string {
	switch {
	case strings.HasPrefix(name, "analog-read-"):
		return "analog-read"
	case strings.HasPrefix(name, "digital-read-"):
		return "digital-read"
	case strings.HasPrefix(name, "I2C-reply"):
		return "i2c-reply"
	}
	return name
}
