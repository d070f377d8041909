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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/board"
)

const (
	defaultSysfsRoot = "/sys/devices/virtual/misc"
	defaultProcRoot  = "/proc"

	// GPIO mode values of the pcDuino kernel
	gpioModeInput  = "0"
	gpioModeOutput = "1"
	gpioModePWM    = "2"

	// Default resolution of a PWM timer
	defaultPWMMaxLevel = 255
)

// PcDuinoConfig configures the pcDuino bridge.
type PcDuinoConfig struct {
	// SysfsRoot is the directory containing the gpio & pwmtimer trees.
	SysfsRoot string
	// ProcRoot is the directory containing the adcN files.
	ProcRoot string
	// StatusLedPin is the GPIO number (/sys/class/gpio) of the status led,
	// -1 for none.
	StatusLedPin int
	// I2CSclPin is the GPIO number of the I2C clock line, used to recover
	// the bus from lockup. -1 disables recovery.
	I2CSclPin int
}

func (c PcDuinoConfig) withDefaults() PcDuinoConfig {
	if c.SysfsRoot == "" {
		c.SysfsRoot = defaultSysfsRoot
	}
	if c.ProcRoot == "" {
		c.ProcRoot = defaultProcRoot
	}
	return c
}

type pcDuinoBridge struct {
	log    zerolog.Logger
	config PcDuinoConfig
	driver *sysfsDriver
	led    *statusLed
	mutex  sync.Mutex
	buses  []I2CBus
}

// NewPcDuinoBridge implements the bridge for a pcDuino.
func NewPcDuinoBridge(log zerolog.Logger, conf PcDuinoConfig) (API, error) {
	conf = conf.withDefaults()
	gpioDir := filepath.Join(conf.SysfsRoot, "gpio")
	if _, err := os.Stat(gpioDir); err != nil {
		return nil, errors.Wrapf(err, "pcDuino gpio interface %s not found", gpioDir)
	}
	led, err := newStatusLed(conf.StatusLedPin)
	if err != nil {
		return nil, err
	}
	return &pcDuinoBridge{
		log:    log.With().Str("component", "bridge").Logger(),
		config: conf,
		driver: newSysfsDriver(conf.SysfsRoot, conf.ProcRoot),
		led:    led,
	}, nil
}

// Driver returns the pin hardware driver.
func (p *pcDuinoBridge) Driver() board.Driver {
	return p.driver
}

// OpenI2CBus opens the I2C bus with given number.
func (p *pcDuinoBridge) OpenI2CBus(busNumber int) (board.Bus, error) {
	bus, err := NewI2CBus(p.log, I2CBusLocation(busNumber), p.config.I2CSclPin)
	if err != nil {
		return nil, errors.Wrap(err, "NewI2CBus failed")
	}
	p.mutex.Lock()
	p.buses = append(p.buses, bus)
	p.mutex.Unlock()
	if addrs := bus.DetectSlaveAddresses(); len(addrs) > 0 {
		p.log.Info().Hex("addresses", addrs).Int("bus", busNumber).Msg("Detected I2C devices")
	}
	return bus, nil
}

// Turn status led on/off
func (p *pcDuinoBridge) SetStatusLED(on bool) error {
	if err := p.led.Set(on); err != nil {
		return errors.Wrap(err, "Set[statusLed] failed")
	}
	return nil
}

// Blink status led with given duration between on/off
func (p *pcDuinoBridge) BlinkStatusLED(delay time.Duration) error {
	if err := p.led.Blink(delay); err != nil {
		return errors.Wrap(err, "Blink[statusLed] failed")
	}
	return nil
}

// Close all opened buses.
func (p *pcDuinoBridge) Close() error {
	p.mutex.Lock()
	buses := p.buses
	p.buses = nil
	p.mutex.Unlock()

	var ae aerr.AggregateError
	for _, bus := range buses {
		if err := bus.Close(); err != nil {
			ae.Add(errors.Wrap(err, "Close failed"))
		}
	}
	return ae.AsError()
}

// sysfsDriver accesses pins through the gpio, pwmtimer & adc files
// of the pcDuino kernel.
type sysfsDriver struct {
	sysfsRoot string
	procRoot  string
}

func newSysfsDriver(sysfsRoot, procRoot string) *sysfsDriver {
	return &sysfsDriver{
		sysfsRoot: sysfsRoot,
		procRoot:  procRoot,
	}
}

func (d *sysfsDriver) gpioPath(kind string, pin int) string {
	return filepath.Join(d.sysfsRoot, "gpio", kind, fmt.Sprintf("gpio%d", pin))
}

func (d *sysfsDriver) pwmPath(kind string, pin int) string {
	return filepath.Join(d.sysfsRoot, "pwmtimer", kind, fmt.Sprintf("pwm%d", pin))
}

func (d *sysfsDriver) adcPath(channel int) string {
	return filepath.Join(d.procRoot, fmt.Sprintf("adc%d", channel))
}

// SetDirection configures the GPIO line of the pin at given index.
func (d *sysfsDriver) SetDirection(pin int, direction board.Direction) error {
	mode := gpioModeOutput
	if direction == board.DirectionInput {
		mode = gpioModeInput
	}
	return d.write("mode", d.gpioPath("mode", pin), mode)
}

// DigitalWrite sets the level of the pin at given index.
func (d *sysfsDriver) DigitalWrite(pin int, value int) error {
	return d.write("digital-write", d.gpioPath("pin", pin), strconv.Itoa(value))
}

// AnalogWrite sets the PWM duty [0..255] of the pin at given index,
// scaled onto the resolution of its timer.
func (d *sysfsDriver) AnalogWrite(pin int, value int) error {
	maxLevel := defaultPWMMaxLevel
	if content, err := os.ReadFile(d.pwmPath("max_level", pin)); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(content))); err == nil && v > 0 {
			maxLevel = v
		}
	}
	if err := d.write("mode", d.gpioPath("mode", pin), gpioModePWM); err != nil {
		return err
	}
	level := value * maxLevel / 255
	return d.write("analog-write", d.pwmPath("level", pin), strconv.Itoa(level))
}

// AnalogRead samples the given ADC channel.
// The kernel reports samples as "adcN:value".
func (d *sysfsDriver) AnalogRead(channel int) (int, error) {
	s, err := d.read("analog-read", d.adcPath(channel))
	if err != nil {
		return 0, err
	}
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(board.ErrInvalidSample, "adc%d: '%s'", channel, s)
	}
	return v, nil
}

// DigitalRead samples the level of the pin at given index.
func (d *sysfsDriver) DigitalRead(pin int) (int, error) {
	s, err := d.read("digital-read", d.gpioPath("pin", pin))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(board.ErrInvalidSample, "gpio%d: '%s'", pin, s)
	}
	return v, nil
}

// SetPWMFrequency programs the pulse frequency (Hz) of the pin at given index.
func (d *sysfsDriver) SetPWMFrequency(pin int, hz int) error {
	return d.write("pwm-frequency", d.pwmPath("freq", pin), strconv.Itoa(hz))
}

func (d *sysfsDriver) write(op, path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		sysfsErrorsTotal.WithLabelValues(op).Inc()
		return errors.Wrapf(err, "%s failed", op)
	}
	return nil
}

func (d *sysfsDriver) read(op, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		sysfsErrorsTotal.WithLabelValues(op).Inc()
		return "", errors.Wrapf(err, "%s failed", op)
	}
	return strings.TrimSpace(string(content)), nil
}

var _ board.Driver = &sysfsDriver{}
