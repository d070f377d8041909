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

// ScaleFunc maps a raw sample onto its normalized value.
type ScaleFunc func(raw int) int

// scaleDigital maps any non-zero level to 1.
func scaleDigital(raw int) int {
	if raw != 0 {
		return High
	}
	return Low
}

// analogScale returns the function that maps raw samples of the given
// ADC channel onto the 10-bit range [0, 1023].
// Channels 0 and 1 are 6-bit converters, channels 2..5 are 12-bit.
func analogScale(channel int) ScaleFunc {
	if channel == 0 || channel == 1 {
		return func(raw int) int { return raw << 4 }
	}
	return func(raw int) int { return raw >> 2 }
}

// constrain limits value to [min, max].
func constrain(value, min, max int) int {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}
