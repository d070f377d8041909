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
	"github.com/duinoio/pcduino-io/pkg/metrics"
)

const (
	subSystem = "board"
)

var (
	// Read loop metrics
	sweepsTotal = metrics.MustRegisterCounter(subSystem,
		"sweeps_total",
		"Number of read loop iterations that sampled pins")
	samplesTotal = metrics.MustRegisterCounterVec(subSystem,
		"samples_total",
		"Number of pin samples",
		"kind")
	invalidSamplesTotal = metrics.MustRegisterCounterVec(subSystem,
		"invalid_samples_total",
		"Number of pin samples that failed and were read as 0",
		"kind")
	subscriptionsGauge = metrics.MustRegisterGauge(subSystem,
		"subscriptions",
		"Number of read subscriptions")
	samplingIntervalGauge = metrics.MustRegisterGauge(subSystem,
		"sampling_interval_ms",
		"Period of the read loop in milliseconds")

	// Pin metrics
	pinValueGauge = metrics.MustRegisterGaugeVec(subSystem,
		"pin_value",
		"Last value written to or read from a pin",
		"pin")
	modeChangesTotal = metrics.MustRegisterCounterVec(subSystem,
		"mode_changes_total",
		"Number of pin mode changes",
		"pin", "mode")

	// Number of published events
	eventsPublishedTotal = metrics.MustRegisterCounterVec(subSystem,
		"events_published_total",
		"Number of published events",
		"kind")
	// Number of events dropped because an observer fell behind
	observerEventsDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"observer_events_dropped_total",
		"Number of events dropped because an observer fell behind")
	// Number of observer callbacks that panicked
	observerPanicsTotal = metrics.MustRegisterCounter(subSystem,
		"observer_panics_total",
		"Number of observer callbacks that panicked")

	// I2C metrics
	i2cWritesTotal = metrics.MustRegisterCounterVec(subSystem,
		"i2c_writes_total",
		"Number of I2C writes",
		"address")
	i2cReadsTotal = metrics.MustRegisterCounterVec(subSystem,
		"i2c_reads_total",
		"Number of I2C reads",
		"address")
	i2cErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"i2c_errors_total",
		"Number of failed I2C transfers",
		"address")
	i2cPendingGauge = metrics.MustRegisterGauge(subSystem,
		"i2c_pending_requests",
		"Number of I2C reads waiting for a reply")
)
