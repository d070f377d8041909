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
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/bridge"
)

func TestDetectBridgeType(t *testing.T) {
	log := zerolog.Nop()
	dir := t.TempDir()
	if v := detectBridgeType(log, "3.4.79+sunxi", dir); v != bridge.TypePcDuino {
		t.Errorf("Expected pcduino, got %s", v)
	}
	if v := detectBridgeType(log, "3.4.79+sunxi", filepath.Join(dir, "missing")); v != bridge.TypeVirtual {
		t.Errorf("Expected virtual, got %s", v)
	}
	if v := detectBridgeType(log, "6.1.0-18-amd64", dir); v != bridge.TypeVirtual {
		t.Errorf("Expected virtual, got %s", v)
	}
}
