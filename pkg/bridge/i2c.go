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
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/board"
)

type i2cBus struct {
	log                  zerolog.Logger
	location             string
	devices              map[uint8]*i2cDevice // Only accessed by queue processor
	sclPin               int
	tryRecoverFromLockup bool

	mutex  sync.RWMutex
	closed bool
	queue  chan func()
}

const (
	I2C_RECOVER_NUM_CLOCKS = 10    /* # clock cycles for recovery  */
	I2C_RECOVER_CLOCK_FREQ = 50000 /* clock frequency for recovery */

	I2C_RECOVER_CLOCK_DELAY_US = (1000000 / (2 * I2C_RECOVER_CLOCK_FREQ))

	// Number of requests that can be queued without blocking
	i2cQueueSize = 64
)

var (
	errBusClosed = errors.New("i2c bus closed")
)

// NewI2CBus returns accessors the the I2C bus at the given location.
// When sclPin >= 0, the bus is recovered from lockup (by clocking SCL)
// after a failed operation.
func NewI2CBus(log zerolog.Logger, location string, sclPin int) (I2CBus, error) {
	if _, err := os.Stat(location); err != nil {
		return nil, errors.Wrapf(err, "i2c bus %s not found", location)
	}
	b := &i2cBus{
		log:                  log.With().Str("component", "i2c").Str("location", location).Logger(),
		location:             location,
		devices:              make(map[uint8]*i2cDevice),
		queue:                make(chan func(), i2cQueueSize),
		sclPin:               sclPin,
		tryRecoverFromLockup: sclPin >= 0,
	}
	go b.queueProcessor()
	return b, nil
}

// I2CBusLocation returns the device path of the I2C bus with given number.
func I2CBusLocation(busNumber int) string {
	return fmt.Sprintf("/dev/i2c-%d", busNumber)
}

// enqueue puts a request in the queue of the bus.
func (b *i2cBus) enqueue(req func()) error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return errBusClosed
	}
	b.queue <- req
	return nil
}

// Write sends all given bytes to the device at given address and waits
// until the write has completed.
func (b *i2cBus) Write(address uint8, data []byte) error {
	done := make(chan error, 1)
	if err := b.enqueue(func() {
		done <- b.execute(address, func(dev *i2cDevice) error {
			return dev.WriteDevice(data)
		})
	}); err != nil {
		return err
	}
	return <-done
}

// Read starts reading len(buf) bytes from the device at given address.
// The callback is invoked on its own goroutine.
func (b *i2cBus) Read(address uint8, buf []byte, cb func(err error, n int, buf []byte)) {
	if err := b.enqueue(func() {
		n := 0
		err := b.execute(address, func(dev *i2cDevice) error {
			var err error
			n, err = dev.ReadDevice(buf)
			return err
		})
		go cb(err, n, buf)
	}); err != nil {
		go cb(err, 0, buf)
	}
}

// Process bus requests from the queue until the queue is closed.
func (b *i2cBus) queueProcessor() {
	// Ensure we're always using the same OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for req := range b.queue {
		req()
	}
}

// Execute an option on the bus.
// Must be called on the queue processor.
func (b *i2cBus) execute(address uint8, op func(*i2cDevice) error) error {
	label := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(label).Inc()

	// Open device
	dev, err := b.openDevice(address)
	if err != nil {
		i2cExecuteErrorCounters.WithLabelValues(label).Inc()
		return fmt.Errorf("openDevice(%d) failed: %w", address, err)
	}

	// Execute operation
	if err := op(dev); err != nil {
		i2cExecuteErrorCounters.WithLabelValues(label).Inc()

		// Device call failed, close all devices
		for _, d := range b.devices {
			d.closeFile()
		}
		clear(b.devices)

		// Perform recovery (if configured)
		if b.tryRecoverFromLockup {
			i2cRecoveryAttemptsTotal.Inc()
			if rerr := b.recoverFromLockup(); rerr != nil {
				i2cRecoveryFailedTotal.Inc()
				b.log.Warn().Err(rerr).Msg("I2C recovery failed")
			} else {
				i2cRecoverySucceededTotal.Inc()
			}
		} else {
			i2cRecoverySkippedTotal.Inc()
		}
		return fmt.Errorf("operation on i2c device 0x%02x failed: %w", address, err)
	}
	return nil
}

// Open a connection to a device at the given address.
func (b *i2cBus) openDevice(address uint8) (*i2cDevice, error) {
	// Did we already open the device?
	if d, found := b.devices[address]; found {
		return d, nil
	}

	// Open new device
	d, err := newI2CDevice(b.location, address)
	if err != nil {
		return nil, err
	}

	// Register device
	b.devices[address] = d

	return d, nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *i2cBus) DetectSlaveAddresses() []byte {
	done := make(chan []byte, 1)
	if err := b.enqueue(func() {
		var result []byte
		for addr := uint8(1); addr < 128; addr++ {
			if d, err := newI2CDevice(b.location, addr); err == nil {
				if err := d.DetectDevice(); err == nil {
					result = append(result, addr)
				}
				d.closeFile()
			}
		}
		done <- result
	}); err != nil {
		return nil
	}
	return <-done
}

// Close the bus and all devices on it
func (b *i2cBus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	done := make(chan error, 1)
	b.queue <- func() {
		var ae aerr.AggregateError
		for addr, d := range b.devices {
			if err := d.closeFile(); err != nil {
				ae.Add(err)
			}
			delete(b.devices, addr)
		}
		done <- ae.AsError()
	}
	err := <-done
	close(b.queue)
	return err
}

// Try to recover the i2c bus from lockup.
func (b *i2cBus) recoverFromLockup() error {
	b.log.Info().Int("scl", b.sclPin).Msg("Performing i2c recovery ...")
	activeLow := true
	initialValue := true
	scl, err := gpio.Output(b.sclPin, activeLow, initialValue)
	if err != nil {
		return fmt.Errorf("failed to set scl pin to output: %w", err)
	}
	for i := 0; i < I2C_RECOVER_NUM_CLOCKS; i++ {
		time.Sleep(time.Microsecond * I2C_RECOVER_CLOCK_DELAY_US)
		if err := scl.Write(false); err != nil {
			return fmt.Errorf("failed to lower scl during i2c recovery: %w", err)
		}
		time.Sleep(time.Microsecond * I2C_RECOVER_CLOCK_DELAY_US)
		if err := scl.Write(true); err != nil {
			return fmt.Errorf("failed to raise scl during i2c recovery: %w", err)
		}
	}
	// Reset pin to be input
	if _, err := gpio.Input(b.sclPin, activeLow); err != nil {
		return fmt.Errorf("failed to reset scl pin to input: %w", err)
	}
	// Unexport the pin
	unexportPath := "/sys/class/gpio/unexport"
	unexportContent := strconv.Itoa(b.sclPin)
	if err := os.WriteFile(unexportPath, []byte(unexportContent), 0644); err != nil {
		return fmt.Errorf("failed to unexport scl pin: %w", err)
	}

	b.log.Info().Msg("Performed i2c recovery.")
	return nil
}

var _ board.Bus = &i2cBus{}
