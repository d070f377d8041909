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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// minTickerPeriod is the shortest period the read loop actually runs at.
	minTickerPeriod = time.Millisecond
)

// ReadKind selects the hardware read of a subscription.
type ReadKind uint8

const (
	ReadKindAnalog ReadKind = iota
	ReadKindDigital
)

// String returns the name of the read kind.
func (k ReadKind) String() string {
	if k == ReadKindAnalog {
		return "analog"
	}
	return "digital"
}

// subscription is a standing request to sample a pin on every tick.
type subscription struct {
	alias int // ADC channel or pin index
	index int
	kind  ReadKind
	event string
	scale ScaleFunc
}

// scheduler runs a single timed loop that calls tick on every period.
type scheduler struct {
	mutex    sync.Mutex
	clock    clock.Clock
	interval time.Duration
	tick     func()
	ticker   *clock.Ticker
	stopCh   chan struct{}
	closed   bool
}

func newScheduler(c clock.Clock, interval time.Duration, tick func()) *scheduler {
	samplingIntervalGauge.Set(float64(interval / time.Millisecond))
	return &scheduler{
		clock:    c,
		interval: interval,
		tick:     tick,
	}
}

// start the loop unless it is already running.
func (s *scheduler) start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.ticker == nil && !s.closed {
		s.runLocked()
	}
}

// stop the loop if it is running.
func (s *scheduler) stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopLocked()
}

// close stops the loop for good.
func (s *scheduler) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopLocked()
	s.closed = true
}

// setInterval replaces the running loop by one with the given period.
func (s *scheduler) setInterval(interval time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.interval = interval
	samplingIntervalGauge.Set(float64(interval / time.Millisecond))
	s.stopLocked()
	if !s.closed {
		s.runLocked()
	}
}

// reset stops the loop and restores the given period.
func (s *scheduler) reset(interval time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stopLocked()
	s.interval = interval
	samplingIntervalGauge.Set(float64(interval / time.Millisecond))
}

// getInterval returns the configured period.
func (s *scheduler) getInterval() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.interval
}

// isRunning returns true while a loop is active.
func (s *scheduler) isRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ticker != nil
}

func (s *scheduler) runLocked() {
	period := s.interval
	if period < minTickerPeriod {
		period = minTickerPeriod
	}
	ticker := s.clock.Ticker(period)
	stopCh := make(chan struct{})
	s.ticker = ticker
	s.stopCh = stopCh
	go s.loop(ticker, stopCh)
}

func (s *scheduler) stopLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.ticker = nil
	s.stopCh = nil
}

func (s *scheduler) loop(ticker *clock.Ticker, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				// Replaced while waiting
				return
			default:
				s.tick()
			}
		}
	}
}

// SetSamplingInterval clamps the given period (in milliseconds) to
// [0, 65535] and restarts the read loop at that period.
// On a closed board only the period is recorded.
// It returns the applied period.
func (b *Board) SetSamplingInterval(ms int) int {
	ms = constrain(ms, 0, int(MaxSamplingInterval/time.Millisecond))
	b.scheduler.setInterval(time.Duration(ms) * time.Millisecond)
	b.log.Debug().Int("ms", ms).Msg("Set sampling interval")
	return ms
}

// SamplingInterval returns the period of the read loop in milliseconds.
func (b *Board) SamplingInterval() int {
	return int(b.scheduler.getInterval() / time.Millisecond)
}

// AnalogRead registers a read of the given analog pin.
// The pin is given as an analog channel ("0") or address ("A0").
// The handler receives every sample, scaled to [0, 1023].
func (b *Board) AnalogRead(address string, handler func(value int)) error {
	index, err := parseAnalogPin(address)
	if err != nil {
		return err
	}
	channel := capabilities[index].AnalogChannel
	return b.registerRead(index, ModeAnalog, &subscription{
		alias: channel,
		index: index,
		kind:  ReadKindAnalog,
		event: AnalogReadEvent(channel),
		scale: analogScale(channel),
	}, handler)
}

// DigitalRead registers a read of the pin with given address.
// The handler receives every sample as 0 or 1.
func (b *Board) DigitalRead(address string, handler func(value int)) error {
	index, err := ParsePin(address)
	if err != nil {
		return err
	}
	return b.registerRead(index, ModeInput, &subscription{
		alias: index,
		index: index,
		kind:  ReadKindDigital,
		event: DigitalReadEvent(index),
		scale: scaleDigital,
	}, handler)
}

// registerRead moves the pin into the required mode, subscribes the
// handler and appends the subscription.
// Subscriptions are not deduplicated; each call adds one.
func (b *Board) registerRead(index int, mode Mode, s *subscription, handler func(int)) error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return maskAny(ErrBoardClosed)
	}
	if err := b.ensureModeLocked(index, mode); err != nil {
		b.mutex.Unlock()
		return err
	}
	if handler != nil {
		b.events.on(s.event, func(ev Event) { handler(ev.Value) }, false)
	}
	b.subscriptions = append(b.subscriptions, s)
	count := len(b.subscriptions)
	b.mutex.Unlock()

	subscriptionsGauge.Set(float64(count))
	b.log.Debug().
		Str("pin", pinAddress(index)).
		Str("kind", s.kind.String()).
		Int("subscriptions", count).
		Msg("Registered read")
	b.scheduler.start()
	return nil
}

// sweep samples all subscriptions in registration order.
func (b *Board) sweep() {
	b.mutex.Lock()
	if !b.ready || b.closed || len(b.subscriptions) == 0 {
		b.mutex.Unlock()
		return
	}
	subs := make([]*subscription, len(b.subscriptions))
	copy(subs, b.subscriptions)
	b.mutex.Unlock()

	sweepsTotal.Inc()
	for _, s := range subs {
		value, ok := b.sample(s)
		if !ok {
			// Board closed during the sweep
			return
		}
		b.events.emit(Event{Name: s.event, Value: value})
	}
}

// sample reads, scales and stores a single subscription.
// Read failures are not fatal; the sample becomes 0.
func (b *Board) sample(s *subscription) (int, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return 0, false
	}
	var raw int
	var err error
	switch s.kind {
	case ReadKindAnalog:
		raw, err = b.driver.AnalogRead(s.alias)
	default:
		raw, err = b.driver.DigitalRead(s.alias)
	}
	kind := s.kind.String()
	samplesTotal.WithLabelValues(kind).Inc()
	if err != nil {
		invalidSamplesTotal.WithLabelValues(kind).Inc()
		if !IsInvalidSample(err) {
			b.log.Debug().Err(err).Str("kind", kind).Int("alias", s.alias).Msg("Read failed")
		}
		raw = 0
	}
	value := raw
	if s.scale != nil {
		value = s.scale(raw)
	}
	p := b.pins[s.index]
	p.value = value
	pinValueGauge.WithLabelValues(p.address).Set(float64(value))
	return value, true
}
