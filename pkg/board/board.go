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

// Package board implements the pin runtime of a pcDuino board.
//
// A Board owns the pins of the board, samples all registered reads
// in a single timed loop and frames I2C transactions on a shared bus.
// Hardware access goes through the Driver and Bus interfaces.
package board

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const (
	// DefaultSamplingInterval is the period of the read loop of a new board.
	DefaultSamplingInterval = time.Millisecond
	// DefaultI2CBus is the number of the I2C bus exposed on the headers.
	DefaultI2CBus = 2
	// MaxSamplingInterval is the longest supported read loop period.
	MaxSamplingInterval = 65535 * time.Millisecond
)

// Config of a Board.
type Config struct {
	// SamplingInterval is the initial period of the read loop.
	SamplingInterval time.Duration
	// I2CBus is the number of the bus opened by I2CConfig.
	I2CBus int
}

// withDefaults returns a copy of the config with unset fields filled in.
func (c Config) withDefaults() Config {
	if c.SamplingInterval == 0 {
		c.SamplingInterval = DefaultSamplingInterval
	}
	return c
}

// Validate the config.
func (c Config) Validate() error {
	var err error
	if c.SamplingInterval < 0 || c.SamplingInterval > MaxSamplingInterval {
		multierr.AppendInto(&err, errors.Errorf("sampling interval %s out of range [0, %s]", c.SamplingInterval, MaxSamplingInterval))
	}
	if c.I2CBus < 0 {
		multierr.AppendInto(&err, errors.Errorf("invalid i2c bus number %d", c.I2CBus))
	}
	return err
}

// Dependencies of a Board.
type Dependencies struct {
	Log zerolog.Logger
	// Driver performs pin hardware access.
	Driver Driver
	// OpenBus opens the I2C bus, it is called at most once.
	OpenBus BusOpener
	// Clock drives the read loop; defaults to the wall clock.
	Clock clock.Clock
	// OnActive is called whenever the board changes hardware state.
	OnActive func()
}

// Board is the runtime of a single board.
type Board struct {
	config Config
	log    zerolog.Logger
	driver Driver
	open   BusOpener

	onActive  func()
	events    *emitter
	scheduler *scheduler

	mutex         sync.Mutex
	pins          [PinCount]*pin
	subscriptions []*subscription
	ready         bool
	closed        bool

	bus      Bus
	i2cDelay int
	pending  map[i2cKey][]*i2cRequest
	tasks    map[*ReadTask]struct{}
}

// New creates a Board with all pins in their power-on mode and
// every pin written LOW.
func New(conf Config, deps Dependencies) (*Board, error) {
	conf = conf.withDefaults()
	if err := conf.Validate(); err != nil {
		return nil, maskAny(err)
	}
	if deps.Driver == nil {
		return nil, errors.New("driver is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.OnActive == nil {
		deps.OnActive = func() {}
	}
	b := &Board{
		config:   conf,
		log:      deps.Log.With().Str("component", "board").Logger(),
		driver:   deps.Driver,
		open:     deps.OpenBus,
		onActive: deps.OnActive,
		events:   newEmitter(deps.Clock.Now),
		pending:  make(map[i2cKey][]*i2cRequest),
		tasks:    make(map[*ReadTask]struct{}),
	}
	b.scheduler = newScheduler(deps.Clock, conf.SamplingInterval, b.sweep)
	var ae aerr.AggregateError
	for i := range b.pins {
		p := newPin(i)
		if err := p.write(b.driver, Low); err != nil {
			ae.Add(err)
		}
		b.pins[i] = p
		pinValueGauge.WithLabelValues(p.address).Set(float64(p.value))
	}
	if err := ae.AsError(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize pins")
	}
	return b, nil
}

// Name of the board.
func (b *Board) Name() string {
	return BoardName
}

// AnalogPins returns the analog channels of the board.
func (b *Board) AnalogPins() []int {
	result := make([]int, 0, AnalogChannelCount)
	for _, c := range capabilities {
		if c.IsAnalog() {
			result = append(result, c.AnalogChannel)
		}
	}
	return result
}

// IsReady returns true once the board is started and until it is closed.
func (b *Board) IsReady() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.ready && !b.closed
}

// Start publishes the connect & ready events and starts the read loop.
// Starting a started board is a no-op.
func (b *Board) Start() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return maskAny(ErrBoardClosed)
	}
	if b.ready {
		b.mutex.Unlock()
		return nil
	}
	b.mutex.Unlock()

	b.events.emit(Event{Name: EventConnect})
	b.mutex.Lock()
	b.ready = true
	b.mutex.Unlock()
	b.log.Info().Str("name", BoardName).Msg("Board ready")
	b.events.emit(Event{Name: EventReady})
	b.scheduler.start()
	return nil
}

// Close stops the read loop and all continuous I2C reads,
// closes the I2C bus and stops delivery to observers.
func (b *Board) Close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil
	}
	b.closed = true
	tasks := make([]*ReadTask, 0, len(b.tasks))
	for t := range b.tasks {
		tasks = append(tasks, t)
	}
	bus := b.bus
	b.bus = nil
	b.mutex.Unlock()

	b.scheduler.close()
	for _, t := range tasks {
		t.Stop()
	}
	var ae aerr.AggregateError
	if bus != nil {
		if err := bus.Close(); err != nil {
			ae.Add(errors.Wrap(err, "failed to close i2c bus"))
		}
	}
	b.events.close()
	b.log.Info().Msg("Board closed")
	return ae.AsError()
}

// Reset removes all read subscriptions, stops the read loop and
// restores the configured sampling interval.
func (b *Board) Reset() {
	b.mutex.Lock()
	b.subscriptions = nil
	b.mutex.Unlock()
	subscriptionsGauge.Set(0)
	b.scheduler.reset(b.config.SamplingInterval)
}

// Pins returns a snapshot of all pins, ordered by index.
func (b *Board) Pins() []PinState {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	result := make([]PinState, 0, len(b.pins))
	for _, p := range b.pins {
		result = append(result, p.snapshot())
	}
	return result
}

// Pin returns a snapshot of the pin with given address.
func (b *Board) Pin(address string) (PinState, error) {
	index, err := ParsePin(address)
	if err != nil {
		return PinState{}, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.pins[index].snapshot(), nil
}

// On registers a listener for events with given name.
// Listeners are invoked in registration order on the publishing goroutine.
func (b *Board) On(name string, fn func(Event)) context.CancelFunc {
	return b.events.on(name, fn, false)
}

// Once registers a listener that is removed after its first invocation.
func (b *Board) Once(name string, fn func(Event)) context.CancelFunc {
	return b.events.on(name, fn, true)
}

// Observe registers a callback that receives all events asynchronously.
func (b *Board) Observe(fn func(Event)) context.CancelFunc {
	return b.events.observe(fn)
}

// SetMode moves the pin with given address into the given mode.
func (b *Board) SetMode(address string, mode Mode) error {
	index, err := ParsePin(address)
	if err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return maskAny(ErrBoardClosed)
	}
	return b.setModeLocked(index, mode)
}

// setModeLocked changes the mode of a pin.
// Caller must hold the mutex.
func (b *Board) setModeLocked(index int, mode Mode) error {
	p := b.pins[index]
	if mode.IsValid() && mode != ModeServo && !p.capability.Supports(mode) {
		b.log.Warn().
			Str("pin", p.address).
			Str("mode", mode.String()).
			Msg("Mode is not listed in the capabilities of the pin")
	}
	if err := p.setMode(b.driver, mode); err != nil {
		return err
	}
	b.onActive()
	modeChangesTotal.WithLabelValues(p.address, mode.String()).Inc()
	b.log.Debug().Str("pin", p.address).Str("mode", mode.String()).Msg("Set pin mode")
	return nil
}

// ensureModeLocked moves the pin into the given mode unless it
// already is in that mode.
// Caller must hold the mutex.
func (b *Board) ensureModeLocked(index int, mode Mode) error {
	if b.pins[index].mode == mode {
		return nil
	}
	return b.setModeLocked(index, mode)
}

// DigitalWrite sets the level of the pin with given address,
// moving it into output mode first when needed.
func (b *Board) DigitalWrite(address string, value int) error {
	return b.writePin(address, ModeOutput, value)
}

// AnalogWrite sets the PWM duty [0..255] of the pin with given address,
// moving it into PWM mode first when needed.
func (b *Board) AnalogWrite(address string, value int) error {
	return b.writePin(address, ModePWM, value)
}

// ServoWrite always fails; the board has no servo support.
func (b *Board) ServoWrite(address string, value int) error {
	return errors.Wrapf(ErrUnsupportedOperation, "servoWrite is not supported on the %s", BoardName)
}

func (b *Board) writePin(address string, mode Mode, value int) error {
	index, err := ParsePin(address)
	if err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return maskAny(ErrBoardClosed)
	}
	if err := b.ensureModeLocked(index, mode); err != nil {
		return err
	}
	p := b.pins[index]
	if err := p.write(b.driver, value); err != nil {
		return err
	}
	b.onActive()
	pinValueGauge.WithLabelValues(p.address).Set(float64(p.value))
	return nil
}
