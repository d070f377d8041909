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
	"github.com/pkg/errors"
)

const (
	maxPWMValue = 255
)

// PinState is a snapshot of a single pin.
type PinState struct {
	Index          int    `json:"index"`
	Address        string `json:"address"`
	Mode           Mode   `json:"mode"`
	IsPWM          bool   `json:"pwm"`
	Value          int    `json:"value"`
	AnalogChannel  int    `json:"analog_channel"`
	SupportedModes []Mode `json:"supported_modes"`
}

type pin struct {
	index      int
	address    string
	capability Capability
	mode       Mode
	isPWM      bool
	value      int
}

// newPin creates the pin at given index in its power-on mode.
func newPin(index int) *pin {
	c := capabilities[index]
	p := &pin{
		index:      index,
		address:    pinAddress(index),
		capability: c,
		mode:       ModeOutput,
	}
	if c.IsAnalog() {
		p.mode = ModeAnalog
	}
	return p
}

// setMode moves the pin into the given mode, programming the hardware
// as needed. On failure the pin state is left untouched.
func (p *pin) setMode(d Driver, mode Mode) error {
	if mode == ModeServo {
		return errors.Wrapf(ErrUnsupportedOperation, "servo mode on pin %s", p.address)
	}
	if !mode.IsValid() {
		return errors.Wrapf(ErrInvalidMode, "mode %d on pin %s", uint8(mode), p.address)
	}
	if mode == ModePWM {
		// Frequency programming is idempotent, so it runs on every entry.
		hz := pwmFrequency(p.index)
		if err := d.SetPWMFrequency(p.index, hz); err != nil {
			return errors.Wrapf(err, "SetPWMFrequency[%s](%d) failed", p.address, hz)
		}
	}
	if dir := mode.direction(); dir != p.mode.direction() {
		if err := d.SetDirection(p.index, dir); err != nil {
			return errors.Wrapf(err, "SetDirection[%s](%s) failed", p.address, dir)
		}
	}
	p.mode = mode
	p.isPWM = mode == ModePWM
	return nil
}

// write the given value to the pin.
// PWM pins take a duty in [0, 255], all others a logical level.
func (p *pin) write(d Driver, value int) error {
	if p.isPWM {
		duty := constrain(value, 0, maxPWMValue)
		if err := d.AnalogWrite(p.index, duty); err != nil {
			return errors.Wrapf(err, "AnalogWrite[%s](%d) failed", p.address, duty)
		}
		p.value = duty
		return nil
	}
	level := scaleDigital(value)
	if err := d.DigitalWrite(p.index, level); err != nil {
		return errors.Wrapf(err, "DigitalWrite[%s](%d) failed", p.address, level)
	}
	p.value = level
	return nil
}

// snapshot returns the current state of the pin.
func (p *pin) snapshot() PinState {
	modes := make([]Mode, len(p.capability.Modes))
	copy(modes, p.capability.Modes)
	return PinState{
		Index:          p.index,
		Address:        p.address,
		Mode:           p.mode,
		IsPWM:          p.isPWM,
		Value:          p.value,
		AnalogChannel:  p.capability.AnalogChannel,
		SupportedModes: modes,
	}
}
