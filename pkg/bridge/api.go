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

package bridge

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/board"
)

const (
	// TypePcDuino selects the bridge for a physical pcDuino.
	TypePcDuino = "pcduino"
	// TypeVirtual selects the in-memory bridge.
	TypeVirtual = "virtual"
)

// API of the bridge, the hardware used to connect the pin runtime
// to the pins and I2C bus of the board.
type API interface {
	// Driver returns the pin hardware driver.
	Driver() board.Driver
	// OpenI2CBus opens the I2C bus with given number.
	OpenI2CBus(busNumber int) (board.Bus, error)

	// Turn status led on/off
	SetStatusLED(on bool) error
	// Blink status led with given duration between on/off
	BlinkStatusLED(delay time.Duration) error

	Close() error
}

// I2CBus is a board.Bus that can probe for devices.
type I2CBus interface {
	board.Bus
	// DetectSlaveAddresses probes the bus to detect available addresses.
	DetectSlaveAddresses() []byte
}

// New creates the bridge of given type.
func New(log zerolog.Logger, bridgeType string, conf PcDuinoConfig) (API, error) {
	switch bridgeType {
	case TypePcDuino:
		return NewPcDuinoBridge(log, conf)
	case TypeVirtual:
		return NewVirtualBridge(log), nil
	default:
		return nil, errors.Errorf("unknown bridge type '%s'", bridgeType)
	}
}
