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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// driverCall records a single call into the fake driver.
type driverCall struct {
	op    string
	pin   int
	value int
}

type fakeDriver struct {
	mutex   sync.Mutex
	calls   []driverCall
	analog  map[int]int
	digital map[int]int
	readErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		analog:  make(map[int]int),
		digital: make(map[int]int),
	}
}

func (d *fakeDriver) record(op string, pin, value int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.calls = append(d.calls, driverCall{op: op, pin: pin, value: value})
}

func (d *fakeDriver) SetDirection(pin int, direction Direction) error {
	d.record("SetDirection", pin, int(direction))
	return nil
}

func (d *fakeDriver) DigitalWrite(pin int, value int) error {
	d.record("DigitalWrite", pin, value)
	return nil
}

func (d *fakeDriver) AnalogWrite(pin int, value int) error {
	d.record("AnalogWrite", pin, value)
	return nil
}

func (d *fakeDriver) AnalogRead(channel int) (int, error) {
	d.record("AnalogRead", channel, 0)
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.readErr != nil {
		return 0, d.readErr
	}
	return d.analog[channel], nil
}

func (d *fakeDriver) DigitalRead(pin int) (int, error) {
	d.record("DigitalRead", pin, 0)
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.readErr != nil {
		return 0, d.readErr
	}
	return d.digital[pin], nil
}

func (d *fakeDriver) SetPWMFrequency(pin int, hz int) error {
	d.record("SetPWMFrequency", pin, hz)
	return nil
}

func (d *fakeDriver) setAnalog(channel, value int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.analog[channel] = value
}

func (d *fakeDriver) setDigital(pin, value int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.digital[pin] = value
}

func (d *fakeDriver) setReadError(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.readErr = err
}

// callsSince returns all calls recorded after the first n calls.
func (d *fakeDriver) callsSince(n int) []driverCall {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	result := make([]driverCall, len(d.calls)-n)
	copy(result, d.calls[n:])
	return result
}

func (d *fakeDriver) callCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.calls)
}

type busWrite struct {
	address uint8
	data    []byte
}

type busRead struct {
	address uint8
	buf     []byte
	cb      func(err error, n int, buf []byte)
}

// fakeBus keeps reads pending until the test completes them.
type fakeBus struct {
	mutex    sync.Mutex
	writes   []busWrite
	reads    []*busRead
	writeErr error
	closed   bool
}

func (b *fakeBus) Write(address uint8, data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	b.writes = append(b.writes, busWrite{address: address, data: append([]byte(nil), data...)})
	return nil
}

func (b *fakeBus) Read(address uint8, buf []byte, cb func(err error, n int, buf []byte)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.reads = append(b.reads, &busRead{address: address, buf: buf, cb: cb})
}

func (b *fakeBus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) readCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.reads)
}

func (b *fakeBus) writeList() []busWrite {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]busWrite(nil), b.writes...)
}

// complete finishes the read with given index, invoking its callback
// on the calling goroutine.
func (b *fakeBus) complete(i int, data []byte, err error) {
	b.mutex.Lock()
	r := b.reads[i]
	b.mutex.Unlock()
	if err != nil {
		r.cb(err, 0, r.buf)
		return
	}
	n := copy(r.buf, data)
	r.cb(nil, n, r.buf)
}

type testBoard struct {
	*Board
	driver *fakeDriver
	bus    *fakeBus
	clock  *clock.Mock
	opened int
}

func newTestBoard(t *testing.T) *testBoard {
	t.Helper()
	tb := &testBoard{
		driver: newFakeDriver(),
		bus:    &fakeBus{},
		clock:  clock.NewMock(),
	}
	b, err := New(Config{I2CBus: DefaultI2CBus}, Dependencies{
		Log:    zerolog.Nop(),
		Driver: tb.driver,
		OpenBus: func(busNumber int) (Bus, error) {
			if busNumber != DefaultI2CBus {
				return nil, errors.Errorf("unexpected bus %d", busNumber)
			}
			tb.opened++
			return tb.bus, nil
		},
		Clock: tb.clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	tb.Board = b
	return tb
}

// tick advances the mock clock by one sampling period.
func (tb *testBoard) tick() {
	d := time.Duration(tb.SamplingInterval()) * time.Millisecond
	if d < minTickerPeriod {
		d = minTickerPeriod
	}
	tb.clock.Add(d)
}

// receive waits for a value on the given channel.
func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for value")
		return 0
	}
}
