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
	"sync"

	"github.com/pkg/errors"
)

const (
	// NoRegister is passed as register to reads that do not select a
	// register before reading.
	NoRegister = -1
)

// i2cKey correlates replies with pending requests.
type i2cKey struct {
	address  uint8
	register int
}

type i2cRequest struct {
	length  int
	cb      func(data []byte)
	onError func(err error)
}

// ReadTask is a running continuous I2C read.
type ReadTask struct {
	board    *Board
	stopOnce sync.Once
	done     chan struct{}
	mutex    sync.Mutex
	err      error
}

// Stop the task. The read that is in flight completes,
// but its callback is no longer invoked.
func (t *ReadTask) Stop() {
	t.stop(nil)
}

// Done returns a channel that is closed once the task has stopped.
func (t *ReadTask) Done() <-chan struct{} {
	return t.done
}

// Err returns the transport error that stopped the task, if any.
func (t *ReadTask) Err() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.err
}

func (t *ReadTask) stop(err error) {
	t.stopOnce.Do(func() {
		t.mutex.Lock()
		t.err = err
		t.mutex.Unlock()
		close(t.done)
		b := t.board
		b.mutex.Lock()
		delete(b.tasks, t)
		b.mutex.Unlock()
	})
}

func (t *ReadTask) isStopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// I2CConfig opens the I2C bus (once) and sets the delay between
// continuous reads. The delay is informational only.
func (b *Board) I2CConfig(delay int) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return maskAny(ErrBoardClosed)
	}
	if _, err := b.ensureBusLocked(); err != nil {
		return err
	}
	b.i2cDelay = delay
	return nil
}

// I2CDelay returns the delay set by I2CConfig.
func (b *Board) I2CDelay() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.i2cDelay
}

// ensureBusLocked opens the I2C bus if needed.
// Caller must hold the mutex.
func (b *Board) ensureBusLocked() (Bus, error) {
	if b.bus != nil {
		return b.bus, nil
	}
	if b.open == nil {
		return nil, errors.Wrap(ErrTransport, "no i2c bus available")
	}
	bus, err := b.open(b.config.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(ErrTransport, "failed to open i2c bus %d: %v", b.config.I2CBus, err)
	}
	b.log.Info().Int("bus", b.config.I2CBus).Msg("Opened I2C bus")
	b.bus = bus
	return bus, nil
}

// i2cBus returns the I2C bus, opening it if needed.
func (b *Board) i2cBus() (Bus, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, maskAny(ErrBoardClosed)
	}
	return b.ensureBusLocked()
}

// I2CWrite sends all given bytes to the device at given address.
// Writing no bytes is a no-op.
func (b *Board) I2CWrite(address uint8, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	bus, err := b.i2cBus()
	if err != nil {
		return err
	}
	return b.i2cWrite(bus, address, data)
}

// I2CWriteReg writes a single value into a register of the device
// at given address.
func (b *Board) I2CWriteReg(address, register, value uint8) error {
	bus, err := b.i2cBus()
	if err != nil {
		return err
	}
	return b.i2cWrite(bus, address, []byte{register, value})
}

func (b *Board) i2cWrite(bus Bus, address uint8, data []byte) error {
	label := addressLabel(address)
	i2cWritesTotal.WithLabelValues(label).Inc()
	if err := bus.Write(address, data); err != nil {
		return b.transportError("write", address, err)
	}
	b.onActive()
	return nil
}

// I2CReadOnce reads length bytes from the device at given address.
// When register is not NoRegister, the register is selected first.
// The callback is invoked exactly once when the reply arrives.
// It is never invoked when the read fails; failures are published
// as error events instead.
func (b *Board) I2CReadOnce(address uint8, register int, length int, cb func(data []byte)) error {
	if err := validateRead(register, length); err != nil {
		return err
	}
	bus, err := b.i2cBus()
	if err != nil {
		return err
	}
	return b.readOnce(bus, address, register, length, cb, nil)
}

// I2CRead continuously reads length bytes from the device at given address.
// The next read is issued once the callback of the previous read returned.
// The task ends when it is stopped, the context is canceled,
// the board is closed or a read fails.
func (b *Board) I2CRead(ctx context.Context, address uint8, register int, length int, cb func(data []byte)) (*ReadTask, error) {
	if err := validateRead(register, length); err != nil {
		return nil, err
	}
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil, maskAny(ErrBoardClosed)
	}
	bus, err := b.ensureBusLocked()
	if err != nil {
		b.mutex.Unlock()
		return nil, err
	}
	t := &ReadTask{
		board: b,
		done:  make(chan struct{}),
	}
	b.tasks[t] = struct{}{}
	b.mutex.Unlock()

	var next func() error
	next = func() error {
		if t.isStopped() {
			return nil
		}
		return b.readOnce(bus, address, register, length, func(data []byte) {
			if t.isStopped() {
				return
			}
			if cb != nil {
				cb(data)
			}
			if err := next(); err != nil {
				t.stop(err)
			}
		}, t.stop)
	}
	if err := next(); err != nil {
		t.stop(err)
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.done:
		}
	}()
	return t, nil
}

// readOnce issues a single (optionally register selected) read.
func (b *Board) readOnce(bus Bus, address uint8, register int, length int, cb func([]byte), onError func(error)) error {
	if register != NoRegister {
		label := addressLabel(address)
		i2cWritesTotal.WithLabelValues(label).Inc()
		if err := bus.Write(address, []byte{uint8(register)}); err != nil {
			return b.transportError("register select", address, err)
		}
	}
	key := i2cKey{address: address, register: register}
	if register == NoRegister {
		key.register = 0
	}
	req := &i2cRequest{
		length:  length,
		cb:      cb,
		onError: onError,
	}
	b.mutex.Lock()
	b.pending[key] = append(b.pending[key], req)
	b.mutex.Unlock()
	i2cPendingGauge.Inc()
	i2cReadsTotal.WithLabelValues(addressLabel(address)).Inc()

	bus.Read(address, make([]byte, length), func(err error, n int, buf []byte) {
		b.onI2CReply(key, req, err, n, buf)
	})
	return nil
}

// onI2CReply completes a pending request.
func (b *Board) onI2CReply(key i2cKey, req *i2cRequest, err error, n int, buf []byte) {
	b.mutex.Lock()
	found := b.removePendingLocked(key, req)
	closed := b.closed
	b.mutex.Unlock()
	if !found {
		return
	}
	i2cPendingGauge.Dec()

	if err != nil {
		if closed {
			return
		}
		werr := b.transportError("read", key.address, err)
		if req.onError != nil {
			req.onError(werr)
		}
		return
	}
	if n > len(buf) {
		n = len(buf)
	}
	data := make([]byte, req.length)
	copy(data, buf[:n])
	b.onActive()
	if req.cb != nil {
		req.cb(data)
	}
	b.events.emit(Event{
		Name: I2CReplyEvent(key.address, key.register),
		Data: data,
	})
}

// removePendingLocked removes the given request from the queue of its key.
// Caller must hold the mutex.
func (b *Board) removePendingLocked(key i2cKey, req *i2cRequest) bool {
	queue := b.pending[key]
	for i, r := range queue {
		if r == req {
			queue = append(queue[:i:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(b.pending, key)
			} else {
				b.pending[key] = queue
			}
			return true
		}
	}
	return false
}

// pendingCount returns the number of requests waiting for a reply
// for given address & register.
func (b *Board) pendingCount(address uint8, register int) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.pending[i2cKey{address: address, register: register}])
}

// transportError publishes a failed bus operation as error event.
func (b *Board) transportError(op string, address uint8, err error) error {
	label := addressLabel(address)
	i2cErrorsTotal.WithLabelValues(label).Inc()
	werr := errors.Wrapf(ErrTransport, "i2c %s at %s: %v", op, label, err)
	b.log.Warn().Err(err).Str("address", label).Str("op", op).Msg("I2C transfer failed")
	b.events.emit(Event{Name: EventError, Err: werr})
	return werr
}

func validateRead(register, length int) error {
	if register != NoRegister && (register < 0 || register > 0xff) {
		return errors.Wrapf(ErrInvalidArgument, "register %d out of range", register)
	}
	if length <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "read length %d must be positive", length)
	}
	return nil
}

func addressLabel(address uint8) string {
	return fmt.Sprintf("0x%02x", address)
}
