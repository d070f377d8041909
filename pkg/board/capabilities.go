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

const (
	// BoardName is the name reported by the board.
	BoardName = "pcDuino3"
	// PinCount is the number of pins in the capability table.
	PinCount = 20
	// FirstAnalogPin is the index of the pin that carries analog channel 0.
	FirstAnalogPin = 14
	// AnalogChannelCount is the number of ADC channels.
	AnalogChannelCount = 6
	// DefaultPWMFrequency is programmed for PWM pins without a table entry.
	DefaultPWMFrequency = 520

	noChannel = -1
)

// Capability describes what a single pin supports.
type Capability struct {
	// Modes lists the modes the pin is wired for.
	Modes []Mode
	// AnalogChannel is the ADC channel of the pin, -1 for digital only pins.
	AnalogChannel int
	// PWMFrequency is the pulse frequency (Hz) programmed when entering PWM
	// mode, 0 when the table has no entry.
	PWMFrequency int
}

// IsAnalog returns true if the pin has an ADC channel.
func (c Capability) IsAnalog() bool {
	return c.AnalogChannel >= 0
}

// Supports returns true if the given mode is listed for the pin.
func (c Capability) Supports(mode Mode) bool {
	for _, m := range c.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

var (
	digitalIO  = []Mode{ModeInput, ModeOutput}
	digitalPWM = []Mode{ModeInput, ModeOutput, ModePWM}
	analogIO   = []Mode{ModeInput, ModeOutput, ModeAnalog}

	// PWM capable hardware:
	// 5, 6: 195Hz, 260Hz, 390Hz, 520Hz and 781Hz
	// 3, 9, 10, 11: [126, 2000]Hz
	capabilities = [PinCount]Capability{
		{AnalogChannel: noChannel}, // UART RX
		{AnalogChannel: noChannel}, // UART TX
		{Modes: digitalIO, AnalogChannel: noChannel},
		{Modes: digitalPWM, AnalogChannel: noChannel, PWMFrequency: 520},
		{Modes: digitalIO, AnalogChannel: noChannel},
		{Modes: digitalPWM, AnalogChannel: noChannel, PWMFrequency: 520},
		{Modes: digitalPWM, AnalogChannel: noChannel, PWMFrequency: 520},
		{Modes: digitalIO, AnalogChannel: noChannel},
		{Modes: digitalIO, AnalogChannel: noChannel},
		{Modes: digitalPWM, AnalogChannel: noChannel, PWMFrequency: 520},
		{Modes: digitalPWM, AnalogChannel: noChannel, PWMFrequency: 520},
		{Modes: digitalPWM, AnalogChannel: noChannel, PWMFrequency: 520},
		{Modes: digitalIO, AnalogChannel: noChannel},
		{Modes: digitalIO, AnalogChannel: noChannel},
		{Modes: analogIO, AnalogChannel: 0},
		{Modes: analogIO, AnalogChannel: 1},
		{Modes: analogIO, AnalogChannel: 2},
		{Modes: analogIO, AnalogChannel: 3},
		{Modes: analogIO, AnalogChannel: 4},
		{Modes: analogIO, AnalogChannel: 5},
	}
)

// Capabilities returns a copy of the capability table.
func Capabilities() []Capability {
	result := make([]Capability, len(capabilities))
	copy(result, capabilities[:])
	return result
}

// pwmFrequency returns the pulse frequency for the pin at given index.
func pwmFrequency(index int) int {
	if f := capabilities[index].PWMFrequency; f > 0 {
		return f
	}
	return DefaultPWMFrequency
}
