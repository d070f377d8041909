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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func TestI2CConfigOpensOnce(t *testing.T) {
	tb := newTestBoard(t)
	if err := tb.I2CConfig(10); err != nil {
		t.Fatalf("I2CConfig failed: %v", err)
	}
	if err := tb.I2CConfig(20); err != nil {
		t.Fatalf("I2CConfig failed: %v", err)
	}
	if err := tb.I2CWriteReg(0x20, 1, 2); err != nil {
		t.Fatalf("I2CWriteReg failed: %v", err)
	}
	if tb.opened != 1 {
		t.Errorf("Expected bus to be opened once, got %d", tb.opened)
	}
	if d := tb.I2CDelay(); d != 20 {
		t.Errorf("Expected delay 20, got %d", d)
	}
}

func TestI2CWrite(t *testing.T) {
	tb := newTestBoard(t)
	if err := tb.I2CWrite(0x40, nil); err != nil {
		t.Fatalf("I2CWrite failed: %v", err)
	}
	if tb.opened != 0 {
		t.Error("Empty write must not open the bus")
	}
	if err := tb.I2CWrite(0x40, []byte{1, 2, 3}); err != nil {
		t.Fatalf("I2CWrite failed: %v", err)
	}
	if err := tb.I2CWriteReg(0x40, 0x10, 0xff); err != nil {
		t.Fatalf("I2CWriteReg failed: %v", err)
	}
	writes := tb.bus.writeList()
	if len(writes) != 2 {
		t.Fatalf("Expected 2 writes, got %d", len(writes))
	}
	if writes[0].address != 0x40 || !bytes.Equal(writes[0].data, []byte{1, 2, 3}) {
		t.Errorf("Unexpected write %+v", writes[0])
	}
	if !bytes.Equal(writes[1].data, []byte{0x10, 0xff}) {
		t.Errorf("Unexpected write %+v", writes[1])
	}
}

func TestI2CReadOnceWithRegister(t *testing.T) {
	tb := newTestBoard(t)
	var calls [][]byte
	var events []Event
	tb.On(I2CReplyEvent(0x20, 5), func(ev Event) { events = append(events, ev) })
	if err := tb.I2CReadOnce(0x20, 5, 2, func(data []byte) { calls = append(calls, data) }); err != nil {
		t.Fatalf("I2CReadOnce failed: %v", err)
	}
	writes := tb.bus.writeList()
	if len(writes) != 1 || !bytes.Equal(writes[0].data, []byte{5}) {
		t.Errorf("Expected single register select write, got %+v", writes)
	}
	if n := tb.bus.readCount(); n != 1 {
		t.Fatalf("Expected 1 read, got %d", n)
	}
	if n := tb.pendingCount(0x20, 5); n != 1 {
		t.Errorf("Expected 1 pending request, got %d", n)
	}
	tb.bus.complete(0, []byte{0xAB, 0xCD}, nil)
	if len(calls) != 1 || !bytes.Equal(calls[0], []byte{0xAB, 0xCD}) {
		t.Errorf("Unexpected callbacks %v", calls)
	}
	if len(events) != 1 || !bytes.Equal(events[0].Data, []byte{0xAB, 0xCD}) {
		t.Errorf("Unexpected events %+v", events)
	}
	if n := tb.pendingCount(0x20, 5); n != 0 {
		t.Errorf("Expected no pending requests, got %d", n)
	}
	// A late duplicate reply is ignored
	tb.bus.complete(0, []byte{1, 2}, nil)
	if len(calls) != 1 {
		t.Errorf("Expected callback to be invoked once, got %d", len(calls))
	}
}

func TestI2CReadOnceWithoutRegister(t *testing.T) {
	tb := newTestBoard(t)
	var got []byte
	if err := tb.I2CReadOnce(0x21, NoRegister, 3, func(data []byte) { got = data }); err != nil {
		t.Fatalf("I2CReadOnce failed: %v", err)
	}
	if writes := tb.bus.writeList(); len(writes) != 0 {
		t.Errorf("Expected no writes, got %+v", writes)
	}
	if n := tb.pendingCount(0x21, 0); n != 1 {
		t.Errorf("Expected request keyed on register 0, got %d", n)
	}
	// Short reply is padded to the requested length
	tb.bus.complete(0, []byte{7}, nil)
	if !bytes.Equal(got, []byte{7, 0, 0}) {
		t.Errorf("Unexpected data %v", got)
	}
}

func TestI2CReadOnceInvalidArguments(t *testing.T) {
	tb := newTestBoard(t)
	if err := tb.I2CReadOnce(0x20, 256, 1, nil); !IsInvalidArgument(err) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	if err := tb.I2CReadOnce(0x20, 0, 0, nil); !IsInvalidArgument(err) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
}

func TestI2CReadTransportError(t *testing.T) {
	tb := newTestBoard(t)
	var errs []error
	tb.On(EventError, func(ev Event) { errs = append(errs, ev.Err) })
	called := false
	if err := tb.I2CReadOnce(0x22, 1, 1, func([]byte) { called = true }); err != nil {
		t.Fatalf("I2CReadOnce failed: %v", err)
	}
	tb.bus.complete(0, nil, errors.New("remote I/O error"))
	if called {
		t.Error("Callback must not be invoked on failure")
	}
	if len(errs) != 1 || !IsTransport(errs[0]) {
		t.Errorf("Expected transport error event, got %v", errs)
	}
	if n := tb.pendingCount(0x22, 1); n != 0 {
		t.Errorf("Expected request to be dropped, got %d", n)
	}
}

func TestI2CWriteTransportError(t *testing.T) {
	tb := newTestBoard(t)
	var errs []error
	tb.On(EventError, func(ev Event) { errs = append(errs, ev.Err) })
	tb.bus.writeErr = errors.New("nack")
	if err := tb.I2CWrite(0x23, []byte{1}); !IsTransport(err) {
		t.Errorf("Expected transport error, got %v", err)
	}
	if err := tb.I2CReadOnce(0x23, 4, 1, nil); !IsTransport(err) {
		t.Errorf("Expected transport error, got %v", err)
	}
	if tb.bus.readCount() != 0 {
		t.Error("Read must not be issued when register select fails")
	}
	if len(errs) != 2 {
		t.Errorf("Expected 2 error events, got %d", len(errs))
	}
}

func TestI2CReadContinuous(t *testing.T) {
	tb := newTestBoard(t)
	var got [][]byte
	task, err := tb.I2CRead(context.Background(), 0x30, 0, 1, func(data []byte) {
		// The next read is issued after this callback returned
		if n := tb.bus.readCount(); n != len(got)+1 {
			t.Errorf("Expected %d reads during callback, got %d", len(got)+1, n)
		}
		got = append(got, data)
	})
	if err != nil {
		t.Fatalf("I2CRead failed: %v", err)
	}
	if n := tb.bus.readCount(); n != 1 {
		t.Fatalf("Expected 1 read, got %d", n)
	}
	tb.bus.complete(0, []byte{1}, nil)
	if n := tb.bus.readCount(); n != 2 {
		t.Fatalf("Expected 2 reads, got %d", n)
	}
	tb.bus.complete(1, []byte{2}, nil)
	task.Stop()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task to stop")
	}
	tb.bus.complete(2, []byte{3}, nil)
	if len(got) != 2 || got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("Unexpected data %v", got)
	}
	if n := tb.bus.readCount(); n != 3 {
		t.Errorf("Expected no reads after Stop, got %d", n)
	}
	if task.Err() != nil {
		t.Errorf("Expected no error, got %v", task.Err())
	}
}

func TestI2CReadContinuousStopsOnError(t *testing.T) {
	tb := newTestBoard(t)
	task, err := tb.I2CRead(context.Background(), 0x31, NoRegister, 2, nil)
	if err != nil {
		t.Fatalf("I2CRead failed: %v", err)
	}
	tb.bus.complete(0, nil, errors.New("bus error"))
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task to stop")
	}
	if !IsTransport(task.Err()) {
		t.Errorf("Expected transport error, got %v", task.Err())
	}
	if n := tb.bus.readCount(); n != 1 {
		t.Errorf("Expected no retries, got %d reads", n)
	}
}

func TestI2CReadContinuousCancel(t *testing.T) {
	tb := newTestBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	task, err := tb.I2CRead(ctx, 0x32, 1, 1, nil)
	if err != nil {
		t.Fatalf("I2CRead failed: %v", err)
	}
	cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task to stop")
	}

	other, err := tb.I2CRead(context.Background(), 0x33, 1, 1, nil)
	if err != nil {
		t.Fatalf("I2CRead failed: %v", err)
	}
	tb.Close()
	select {
	case <-other.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task to stop on Close")
	}
}

func TestI2CWithoutBus(t *testing.T) {
	b, err := New(Config{}, Dependencies{Log: zerolog.Nop(), Driver: newFakeDriver()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()
	if err := b.I2CConfig(0); !IsTransport(err) {
		t.Errorf("Expected transport error, got %v", err)
	}
}
