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
	"testing"
	"time"

	"github.com/pkg/errors"
)

// collect returns a read handler that forwards values into a channel
// without blocking the read loop.
func collect() (func(int), chan int) {
	ch := make(chan int, 64)
	return func(v int) {
		select {
		case ch <- v:
		default:
		}
	}, ch
}

func TestAnalogReadScaling(t *testing.T) {
	tb := newTestBoard(t)
	tb.driver.setAnalog(0, 64)
	tb.driver.setAnalog(2, 64)
	h0, ch0 := collect()
	h2, ch2 := collect()
	if err := tb.AnalogRead("0", h0); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.AnalogRead("A2", h2); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.tick()
	if v := receive(t, ch0); v != 1024 {
		t.Errorf("Channel 0: expected 1024, got %d", v)
	}
	if v := receive(t, ch2); v != 16 {
		t.Errorf("Channel 2: expected 16, got %d", v)
	}
	if p, _ := tb.Pin("A2"); p.Value != 16 {
		t.Errorf("Expected stored value 16, got %d", p.Value)
	}
}

func TestAnalogReadAddressForms(t *testing.T) {
	tb := newTestBoard(t)
	tb.driver.setAnalog(1, 2)
	hChannel, chChannel := collect()
	hAddress, chAddress := collect()
	if err := tb.AnalogRead("1", hChannel); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.AnalogRead("A1", hAddress); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.tick()
	if v := receive(t, chChannel); v != 32 {
		t.Errorf("Expected 32, got %d", v)
	}
	if v := receive(t, chAddress); v != 32 {
		t.Errorf("Expected 32, got %d", v)
	}
	for _, c := range tb.driver.callsSince(0) {
		if c.op == "AnalogRead" && c.pin != 1 {
			t.Errorf("Unexpected read of channel %d", c.pin)
		}
	}
	if err := tb.AnalogRead("7", nil); !IsInvalidPin(err) {
		t.Errorf("Expected invalid pin, got %v", err)
	}
}

func TestDigitalReadCoerces(t *testing.T) {
	tb := newTestBoard(t)
	tb.driver.setDigital(2, 5)
	h, ch := collect()
	n := tb.driver.callCount()
	if err := tb.DigitalRead("2", h); err != nil {
		t.Fatalf("DigitalRead failed: %v", err)
	}
	calls := tb.driver.callsSince(n)
	if len(calls) != 1 || calls[0] != (driverCall{op: "SetDirection", pin: 2, value: int(DirectionInput)}) {
		t.Errorf("Expected direction change to input, got %+v", calls)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.tick()
	if v := receive(t, ch); v != 1 {
		t.Errorf("Expected 1, got %d", v)
	}
	if p, _ := tb.Pin("2"); p.Mode != ModeInput {
		t.Errorf("Expected input mode, got %s", p.Mode)
	}
}

func TestReadErrorsBecomeZero(t *testing.T) {
	tb := newTestBoard(t)
	tb.driver.setAnalog(3, 100)
	tb.driver.setReadError(errors.Wrap(ErrInvalidSample, "garbage"))
	h, ch := collect()
	if err := tb.AnalogRead("3", h); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.tick()
	if v := receive(t, ch); v != 0 {
		t.Errorf("Expected 0, got %d", v)
	}
}

func TestNoSamplesBeforeStart(t *testing.T) {
	tb := newTestBoard(t)
	h, ch := collect()
	if err := tb.AnalogRead("0", h); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	tb.tick()
	select {
	case v := <-ch:
		t.Errorf("Unexpected sample %d before Start", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetSamplingIntervalClamps(t *testing.T) {
	tb := newTestBoard(t)
	if v := tb.SetSamplingInterval(-5); v != 0 {
		t.Errorf("Expected 0, got %d", v)
	}
	if v := tb.SamplingInterval(); v != 0 {
		t.Errorf("Expected 0, got %d", v)
	}
	if v := tb.SetSamplingInterval(70000); v != 65535 {
		t.Errorf("Expected 65535, got %d", v)
	}
	if v := tb.SetSamplingInterval(250); v != 250 {
		t.Errorf("Expected 250, got %d", v)
	}
}

func TestSetSamplingIntervalReplacesLoop(t *testing.T) {
	tb := newTestBoard(t)
	h, ch := collect()
	if err := tb.AnalogRead("0", h); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.SetSamplingInterval(1000)
	tb.clock.Add(999 * time.Millisecond)
	select {
	case v := <-ch:
		t.Fatalf("Unexpected sample %d before the period elapsed", v)
	case <-time.After(50 * time.Millisecond):
	}
	tb.clock.Add(time.Millisecond)
	receive(t, ch)
}

func TestSetSamplingIntervalAfterClose(t *testing.T) {
	tb := newTestBoard(t)
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := tb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if v := tb.SetSamplingInterval(20); v != 20 {
		t.Errorf("Expected 20, got %d", v)
	}
	if tb.scheduler.isRunning() {
		t.Error("Expected no read loop on a closed board")
	}
	tb.scheduler.start()
	if tb.scheduler.isRunning() {
		t.Error("Expected start to be ignored on a closed board")
	}
}

func TestResetClearsSubscriptions(t *testing.T) {
	tb := newTestBoard(t)
	h, ch := collect()
	if err := tb.DigitalRead("5", h); err != nil {
		t.Fatalf("DigitalRead failed: %v", err)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.SetSamplingInterval(100)
	tb.Reset()
	if v := tb.SamplingInterval(); v != 1 {
		t.Errorf("Expected default interval, got %d", v)
	}
	if tb.scheduler.isRunning() {
		t.Error("Expected read loop to be stopped")
	}
	tb.scheduler.start()
	tb.tick()
	select {
	case v := <-ch:
		t.Errorf("Unexpected sample %d after Reset", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionsAreNotDeduplicated(t *testing.T) {
	tb := newTestBoard(t)
	h, ch := collect()
	if err := tb.DigitalRead("8", h); err != nil {
		t.Fatalf("DigitalRead failed: %v", err)
	}
	if err := tb.DigitalRead("8", nil); err != nil {
		t.Fatalf("DigitalRead failed: %v", err)
	}
	tb.mutex.Lock()
	count := len(tb.subscriptions)
	tb.mutex.Unlock()
	if count != 2 {
		t.Errorf("Expected 2 subscriptions, got %d", count)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.tick()
	// One event per subscription reaches the single handler.
	receive(t, ch)
	receive(t, ch)
}

func TestSweepOrder(t *testing.T) {
	tb := newTestBoard(t)
	var order []string
	done := make(chan struct{}, 1)
	tb.On(DigitalReadEvent(4), func(ev Event) { order = append(order, ev.Name) })
	tb.On(AnalogReadEvent(0), func(ev Event) {
		order = append(order, ev.Name)
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err := tb.DigitalRead("4", nil); err != nil {
		t.Fatalf("DigitalRead failed: %v", err)
	}
	if err := tb.AnalogRead("A0", nil); err != nil {
		t.Fatalf("AnalogRead failed: %v", err)
	}
	if err := tb.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tb.tick()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sweep")
	}
	tb.Close()
	if len(order) < 2 || order[0] != "digital-read-4" || order[1] != "analog-read-0" {
		t.Errorf("Unexpected order %v", order)
	}
}
