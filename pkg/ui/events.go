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
	"fmt"
	"sync"

	"github.com/duinoio/pcduino-io/pkg/board"
)

// EventLog keeps the most recent board events for display.
type EventLog struct {
	mutex sync.Mutex
	size  int
	lines []string
}

// NewEventLog creates a log holding up to size events.
func NewEventLog(size int) *EventLog {
	return &EventLog{size: size}
}

// Add an event to the log.
func (l *EventLog) Add(ev board.Event) {
	line := fmt.Sprintf("%s %-16s", ev.Time.Format("15:04:05.000"), ev.Name)
	switch {
	case ev.Err != nil:
		line += " " + ev.Err.Error()
	case ev.Data != nil:
		line += fmt.Sprintf(" % x", ev.Data)
	case ev.Name != board.EventConnect && ev.Name != board.EventReady:
		line += fmt.Sprintf(" %d", ev.Value)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.lines = append(l.lines, line)
	if over := len(l.lines) - l.size; over > 0 {
		l.lines = append(l.lines[:0:0], l.lines[over:]...)
	}
}

// Lines returns the logged events, oldest first.
func (l *EventLog) Lines() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string(nil), l.lines...)
}
