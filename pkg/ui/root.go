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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/duinoio/pcduino-io/pkg/board"
)

const (
	refreshInterval = time.Millisecond * 500
	loadAvgInterval = time.Second * 2
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tableStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

// Board is the part of the board shown in the UI.
type Board interface {
	Name() string
	IsReady() bool
	Pins() []board.PinState
	SamplingInterval() int
	SetSamplingInterval(ms int) int
}

type Root struct {
	board     Board
	events    *EventLog
	startedAt time.Time

	term    string
	width   int
	height  int
	loadAvg string

	pins       table.Model
	showEvents struct {
		active   bool
		viewPort viewport.Model
	}
}

var _ tea.Model = Root{}

// NewRoot creates the root model for a terminal of given size.
func NewRoot(b Board, events *EventLog, startedAt time.Time, term string, width, height int) Root {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Pin", Width: 5},
			{Title: "Address", Width: 8},
			{Title: "Mode", Width: 8},
			{Title: "PWM", Width: 5},
			{Title: "Value", Width: 7},
		}),
		table.WithRows(pinRows(b.Pins())),
		table.WithFocused(true),
		table.WithHeight(board.PinCount),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)
	r := Root{
		board:     b,
		events:    events,
		startedAt: startedAt,
		term:      term,
		width:     width,
		height:    height,
		pins:      t,
	}
	return r.resize()
}

// Init is the first function that will be called. It returns an optional
// initial command. To not perform an initial command return nil.
func (r Root) Init() tea.Cmd {
	return tea.Batch(doRefresh(), doReloadCPULoadAvg())
}

// Update is called when a message is received. Use it to inspect messages
// and, in response, update the model and/or send a command.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case refreshMsg:
		r.pins.SetRows(pinRows(r.board.Pins()))
		if r.showEvents.active {
			r.showEvents.viewPort.SetContent(r.eventsContent())
		}
		return r, doRefresh()
	case loadAvgMsg:
		r.loadAvg = string(msg)
		return r, doReloadCPULoadAvg()
	case tea.WindowSizeMsg:
		r.height = msg.Height
		r.width = msg.Width
		r = r.resize()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return r, tea.Quit
		case "e":
			r.showEvents.active = !r.showEvents.active
			r.showEvents.viewPort.SetContent(r.eventsContent())
			r.showEvents.viewPort.GotoBottom()
		case "esc":
			r.showEvents.active = false
		case "+":
			r.board.SetSamplingInterval(max(r.board.SamplingInterval()*2, 1))
		case "-":
			r.board.SetSamplingInterval(r.board.SamplingInterval() / 2)
		}
	}

	// Handle keyboard and mouse events in the viewport
	var cmd tea.Cmd
	if r.showEvents.active {
		r.showEvents.viewPort, cmd = r.showEvents.viewPort.Update(msg)
	} else {
		r.pins, cmd = r.pins.Update(msg)
	}
	cmds = append(cmds, cmd)

	return r, tea.Batch(cmds...)
}

// View renders the program's UI, which is just a string. The view is
// rendered after every Update.
func (r Root) View() string {
	s := r.headerView()
	if r.showEvents.active {
		return s + r.showEvents.viewPort.View() + "\n" + infoStyle.Render("esc - Back")
	}
	s += tableStyle.Render(r.pins.View()) + "\n"
	s += infoStyle.Render(`e - View events
+/- - Change sampling interval
q - Disconnect`)
	return s
}

func (r Root) headerView() string {
	status := "not ready"
	if r.board.IsReady() {
		status = "ready"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("Welcome to %s!", r.board.Name())),
		infoStyle.Render(fmt.Sprintf("Status: %s, sampling every %dms, started %s",
			status, r.board.SamplingInterval(), humanize.Time(r.startedAt))),
		infoStyle.Render(strings.TrimSpace(r.loadAvg)),
	) + "\n"
}

func (r Root) resize() Root {
	headerHeight := lipgloss.Height(r.headerView())
	height := r.height - headerHeight - 1
	if height < 1 {
		height = 1
	}
	r.showEvents.viewPort = viewport.New(r.width, height)
	r.showEvents.viewPort.YPosition = headerHeight
	r.showEvents.viewPort.SetContent(r.eventsContent())
	return r
}

func (r Root) eventsContent() string {
	if r.events == nil {
		return ""
	}
	return strings.Join(r.events.Lines(), "\n")
}

func pinRows(pins []board.PinState) []table.Row {
	rows := make([]table.Row, 0, len(pins))
	for _, p := range pins {
		pwm := ""
		if p.IsPWM {
			pwm = "yes"
		}
		rows = append(rows, table.Row{
			strconv.Itoa(p.Index),
			p.Address,
			p.Mode.String(),
			pwm,
			strconv.Itoa(p.Value),
		})
	}
	return rows
}

type refreshMsg struct{}

func doRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

type loadAvgMsg string

func doReloadCPULoadAvg() tea.Cmd {
	return tea.Tick(loadAvgInterval, func(t time.Time) tea.Msg {
		if content, err := os.ReadFile("/proc/loadavg"); err != nil {
			return loadAvgMsg(err.Error())
		} else {
			return loadAvgMsg(string(content))
		}
	})
}
