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

// Driver performs the physical register access of the pins.
type Driver interface {
	// SetDirection configures the GPIO line of the pin at given index.
	SetDirection(pin int, direction Direction) error
	// DigitalWrite sets the level (0/1) of the pin at given index.
	DigitalWrite(pin int, value int) error
	// AnalogWrite sets the PWM duty (0..255) of the pin at given index.
	AnalogWrite(pin int, value int) error
	// AnalogRead samples the given ADC channel.
	// Samples that cannot be interpreted return an ErrInvalidSample error.
	AnalogRead(channel int) (int, error)
	// DigitalRead samples the level of the pin at given index.
	DigitalRead(pin int) (int, error)
	// SetPWMFrequency programs the pulse frequency (Hz) of the pin at given index.
	SetPWMFrequency(pin int, hz int) error
}

// Bus is an opened I2C bus.
type Bus interface {
	// Write sends all given bytes to the device at given address.
	Write(address uint8, data []byte) error
	// Read starts reading len(buf) bytes from the device at given address.
	// The callback is invoked once the read completed or failed.
	Read(address uint8, buf []byte, cb func(err error, n int, buf []byte))
	// Close the bus.
	Close() error
}

// BusOpener opens the I2C bus with given number.
type BusOpener func(busNumber int) (Bus, error)
