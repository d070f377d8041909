// Copyright 2023 Ewout Prangsma
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

package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/duinoio/pcduino-io/pkg/board"
)

type fakeBoard struct {
	interval int
	pins     []board.PinState
}

func (b *fakeBoard) Name() string                   { return "pcDuino3" }
func (b *fakeBoard) IsReady() bool                  { return true }
func (b *fakeBoard) Pins() []board.PinState         { return b.pins }
func (b *fakeBoard) SamplingInterval() int          { return b.interval }
func (b *fakeBoard) SetSamplingInterval(ms int) int { b.interval = ms; return ms }

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		interval: 10,
		pins: []board.PinState{
			{Index: 3, Address: "3", Mode: board.ModePWM, IsPWM: true, Value: 128, AnalogChannel: -1},
			{Index: 14, Address: "A0", Mode: board.ModeAnalog, Value: 512, AnalogChannel: 0},
		},
	}
}

func TestRootView(t *testing.T) {
	b := newFakeBoard()
	r := NewRoot(b, NewEventLog(10), time.Now(), "xterm", 80, 40)
	view := r.View()
	for _, expected := range []string{"pcDuino3", "A0", "analog", "pwm", "512", "10ms"} {
		if !strings.Contains(view, expected) {
			t.Errorf("Expected view to contain '%s'", expected)
		}
	}

	b.pins[1].Value = 77
	m, _ := r.Update(refreshMsg{})
	if view := m.View(); !strings.Contains(view, "77") {
		t.Error("Expected refreshed value in view")
	}
}

func TestRootKeys(t *testing.T) {
	b := newFakeBoard()
	var m tea.Model = NewRoot(b, NewEventLog(10), time.Now(), "xterm", 80, 40)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	if b.interval != 20 {
		t.Errorf("Expected interval 20, got %d", b.interval)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}})
	if b.interval != 10 {
		t.Errorf("Expected interval 10, got %d", b.interval)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	if !m.(Root).showEvents.active {
		t.Error("Expected events view to be active")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected quit message")
	}
}

func TestEventLog(t *testing.T) {
	l := NewEventLog(2)
	l.Add(board.Event{Name: board.EventReady})
	l.Add(board.Event{Name: "analog-read-0", Value: 1023})
	l.Add(board.Event{Name: board.EventError, Err: errors.New("nack")})
	lines := l.Lines()
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "1023") || !strings.Contains(lines[1], "nack") {
		t.Errorf("Unexpected lines %v", lines)
	}
}
