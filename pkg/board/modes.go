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
	"strings"

	"github.com/pkg/errors"
)

// Mode is the operating configuration of a pin.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeAnalog
	ModePWM
	ModeServo
)

const (
	// High is the logical level of a pin that is on.
	High = 1
	// Low is the logical level of a pin that is off.
	Low = 0
)

var modeNames = map[Mode]string{
	ModeInput:  "input",
	ModeOutput: "output",
	ModeAnalog: "analog",
	ModePWM:    "pwm",
	ModeServo:  "servo",
}

// String returns the name of the mode.
func (m Mode) String() string {
	if name, found := modeNames[m]; found {
		return name
	}
	return "unknown"
}

// IsValid returns true if m is one of the declared modes.
func (m Mode) IsValid() bool {
	_, found := modeNames[m]
	return found
}

// direction returns the hardware direction implied by the mode.
func (m Mode) direction() Direction {
	switch m {
	case ModeInput, ModeAnalog:
		return DirectionInput
	default:
		return DirectionOutput
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, errors.Wrapf(ErrInvalidMode, "mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode parses a mode by name (case insensitive).
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidMode, "'%s'", s)
}

// Direction of a hardware GPIO line.
type Direction uint8

const (
	DirectionInput Direction = iota
	DirectionOutput
)

// String returns the name of the direction.
func (d Direction) String() string {
	if d == DirectionInput {
		return "in"
	}
	return "out"
}
