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
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
)

// UI creates a Root model for every SSH session.
type UI struct {
	board     Board
	events    *EventLog
	startedAt time.Time
}

// New creates the UI of given board.
func New(b Board, events *EventLog) *UI {
	return &UI{
		board:     b,
		events:    events,
		startedAt: time.Now(),
	}
}

// Handler creates the model of a session.
func (u *UI) Handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, _ := s.Pty()
	root := NewRoot(u.board, u.events, u.startedAt, pty.Term, pty.Window.Width, pty.Window.Height)
	return root, []tea.ProgramOption{tea.WithAltScreen()}
}
