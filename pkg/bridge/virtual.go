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

package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/board"
)

// VirtualDevice is an I2C device with 256 byte registers.
// Writes set the register pointer from their first byte and store the
// remaining bytes from there on. Reads return bytes from the register
// pointer on, advancing it.
type VirtualDevice struct {
	mutex     sync.Mutex
	registers [256]byte
	pointer   uint8
}

// Set the value of a register.
func (d *VirtualDevice) Set(register uint8, value byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.registers[register] = value
}

// Get the value of a register.
func (d *VirtualDevice) Get(register uint8) byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.registers[register]
}

func (d *VirtualDevice) write(data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(data) == 0 {
		return
	}
	d.pointer = data[0]
	for _, v := range data[1:] {
		d.registers[d.pointer] = v
		d.pointer++
	}
}

func (d *VirtualDevice) read(buf []byte) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for i := range buf {
		buf[i] = d.registers[d.pointer]
		d.pointer++
	}
	return len(buf)
}

type virtualBridge struct {
	log     zerolog.Logger
	driver  *VirtualDriver
	mutex   sync.Mutex
	devices map[uint8]*VirtualDevice
	led     bool
}

// VirtualBridge is the bridge for boards without hardware.
type VirtualBridge interface {
	API
	// VirtualDriver returns the in-memory pin driver.
	VirtualDriver() *VirtualDriver
	// AddDevice places a device at given address on every bus.
	AddDevice(address uint8) *VirtualDevice
}

// NewVirtualBridge implements the bridge for a virtual board.
func NewVirtualBridge(log zerolog.Logger) VirtualBridge {
	return &virtualBridge{
		log:     log.With().Str("component", "bridge").Logger(),
		driver:  NewVirtualDriver(),
		devices: make(map[uint8]*VirtualDevice),
	}
}

// Driver returns the pin hardware driver.
func (p *virtualBridge) Driver() board.Driver {
	return p.driver
}

// VirtualDriver returns the in-memory pin driver.
func (p *virtualBridge) VirtualDriver() *VirtualDriver {
	return p.driver
}

// AddDevice places a device at given address on every bus.
func (p *virtualBridge) AddDevice(address uint8) *VirtualDevice {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	d := &VirtualDevice{}
	p.devices[address] = d
	return d
}

func (p *virtualBridge) device(address uint8) (*VirtualDevice, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if d, found := p.devices[address]; found {
		return d, nil
	}
	return nil, fmt.Errorf("device 0x%02x not found", address)
}

// OpenI2CBus opens a virtual bus.
func (p *virtualBridge) OpenI2CBus(busNumber int) (board.Bus, error) {
	p.log.Debug().Int("bus", busNumber).Msg("Opened virtual I2C bus")
	return &virtualBus{bridge: p}, nil
}

// Turn status led on/off
func (p *virtualBridge) SetStatusLED(on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.led = on
	return nil
}

// Blink status led with given duration between on/off
func (p *virtualBridge) BlinkStatusLED(delay time.Duration) error {
	return nil
}

func (p *virtualBridge) Close() error {
	return nil
}

type virtualBus struct {
	bridge *virtualBridge
}

// Write sends all given bytes to the device at given address.
func (b *virtualBus) Write(address uint8, data []byte) error {
	d, err := b.bridge.device(address)
	if err != nil {
		return err
	}
	d.write(data)
	return nil
}

// Read reads len(buf) bytes from the device at given address.
func (b *virtualBus) Read(address uint8, buf []byte, cb func(err error, n int, buf []byte)) {
	d, err := b.bridge.device(address)
	if err != nil {
		go cb(err, 0, buf)
		return
	}
	n := d.read(buf)
	go cb(nil, n, buf)
}

// DetectSlaveAddresses returns the addresses of all devices.
func (b *virtualBus) DetectSlaveAddresses() []byte {
	b.bridge.mutex.Lock()
	defer b.bridge.mutex.Unlock()
	var result []byte
	for addr := uint8(1); addr < 128; addr++ {
		if _, found := b.bridge.devices[addr]; found {
			result = append(result, addr)
		}
	}
	return result
}

func (b *virtualBus) Close() error {
	return nil
}

// VirtualDriver keeps pin state in memory.
// Digital reads return the last written level, unless an input level
// is set. Analog reads return the raw sample set for the channel.
type VirtualDriver struct {
	mutex      sync.Mutex
	directions map[int]board.Direction
	levels     map[int]int
	inputs     map[int]int
	duties     map[int]int
	frequency  map[int]int
	samples    map[int]int
}

// NewVirtualDriver creates a driver without hardware.
func NewVirtualDriver() *VirtualDriver {
	return &VirtualDriver{
		directions: make(map[int]board.Direction),
		levels:     make(map[int]int),
		inputs:     make(map[int]int),
		duties:     make(map[int]int),
		frequency:  make(map[int]int),
		samples:    make(map[int]int),
	}
}

// SetDirection configures the GPIO line of the pin at given index.
func (d *VirtualDriver) SetDirection(pin int, direction board.Direction) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.directions[pin] = direction
	return nil
}

// DigitalWrite sets the level of the pin at given index.
func (d *VirtualDriver) DigitalWrite(pin int, value int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.levels[pin] = value
	return nil
}

// AnalogWrite sets the PWM duty of the pin at given index.
func (d *VirtualDriver) AnalogWrite(pin int, value int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.duties[pin] = value
	return nil
}

// AnalogRead returns the sample set for the given ADC channel.
func (d *VirtualDriver) AnalogRead(channel int) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.samples[channel], nil
}

// DigitalRead returns the input level of the pin at given index.
func (d *VirtualDriver) DigitalRead(pin int) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if v, found := d.inputs[pin]; found {
		return v, nil
	}
	return d.levels[pin], nil
}

// SetPWMFrequency programs the pulse frequency of the pin at given index.
func (d *VirtualDriver) SetPWMFrequency(pin int, hz int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.frequency[pin] = hz
	return nil
}

// SetSample sets the raw sample returned for the given ADC channel.
func (d *VirtualDriver) SetSample(channel, raw int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.samples[channel] = raw
}

// SetInput sets the level returned by digital reads of the given pin.
func (d *VirtualDriver) SetInput(pin, level int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.inputs[pin] = level
}

// Level returns the last level written to the given pin.
func (d *VirtualDriver) Level(pin int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.levels[pin]
}

// Duty returns the last PWM duty written to the given pin.
func (d *VirtualDriver) Duty(pin int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.duties[pin]
}

// Frequency returns the PWM frequency programmed for the given pin.
func (d *VirtualDriver) Frequency(pin int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.frequency[pin]
}

// Direction returns the direction of the given pin.
func (d *VirtualDriver) Direction(pin int) board.Direction {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.directions[pin]
}

var (
	_ board.Driver = &VirtualDriver{}
	_ I2CBus       = &virtualBus{}
)
