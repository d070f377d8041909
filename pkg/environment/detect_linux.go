//    Copyright 2018 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package environment

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/duinoio/pcduino-io/pkg/bridge"
)

const (
	pcDuinoGpioPath = "/sys/devices/virtual/misc/gpio"
)

// AutoDetectBridgeType detects the default bridge type based on the environment.
// Allwinner (sunxi) kernels exposing the pcDuino gpio interface get the
// pcDuino bridge, everything else the virtual bridge.
func AutoDetectBridgeType(log zerolog.Logger) string {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		log.Warn().Err(err).Msg("Uname failed, using virtual bridge")
		return bridge.TypeVirtual
	}
	release := strings.TrimSpace(unix.ByteSliceToString(name.Release[:]))
	return detectBridgeType(log, release, pcDuinoGpioPath)
}

func detectBridgeType(log zerolog.Logger, release, gpioPath string) string {
	if !strings.Contains(release, "sunxi") {
		log.Debug().Str("release", release).Msg("Not a sunxi kernel")
		return bridge.TypeVirtual
	}
	if _, err := os.Stat(gpioPath); err != nil {
		log.Warn().Str("release", release).Msg("sunxi kernel without pcDuino gpio interface")
		return bridge.TypeVirtual
	}
	return bridge.TypePcDuino
}
