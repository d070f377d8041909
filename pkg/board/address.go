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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AnalogPin returns the address of the pin carrying the given analog channel.
func AnalogPin(channel int) string {
	return "A" + strconv.Itoa(channel)
}

// DigitalPin returns the address of the pin with given index.
func DigitalPin(index int) string {
	return strconv.Itoa(index)
}

// pinAddress returns the address a pin reports: "A<channel>" for analog
// pins, the decimal index otherwise.
func pinAddress(index int) string {
	if c := capabilities[index]; c.IsAnalog() {
		return AnalogPin(c.AnalogChannel)
	}
	return DigitalPin(index)
}

// ParsePin converts a pin address into a pin index.
// Addresses are either a decimal pin index ("13") or an
// "A"-prefixed analog channel ("A0" is pin 14).
func ParsePin(pin string) (int, error) {
	s := strings.TrimSpace(pin)
	offset := 0
	if strings.HasPrefix(s, "A") || strings.HasPrefix(s, "a") {
		offset = FirstAnalogPin
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidPin, "'%s'", pin)
	}
	index := n + offset
	if n < 0 || index >= PinCount {
		return 0, errors.Wrapf(ErrInvalidPin, "'%s' is out of range", pin)
	}
	return index, nil
}

// parseAnalogPin converts the argument of an analog read into a pin index.
// A plain number is treated as an analog channel.
func parseAnalogPin(pin string) (int, error) {
	s := strings.TrimSpace(pin)
	if _, err := strconv.Atoi(s); err == nil {
		s = "A" + s
	}
	index, err := ParsePin(s)
	if err != nil {
		return 0, err
	}
	if !capabilities[index].IsAnalog() {
		return 0, errors.Wrapf(ErrInvalidPin, "'%s' has no analog channel", pin)
	}
	return index, nil
}
