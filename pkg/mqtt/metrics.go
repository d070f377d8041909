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

package mqtt

import (
	"github.com/duinoio/pcduino-io/pkg/metrics"
)

const (
	subSystem = "mqtt"
)

var (
	messagesPublishedTotal = metrics.MustRegisterCounter(subSystem,
		"messages_published_total",
		"Number of MQTT messages published")
	publishFailuresTotal = metrics.MustRegisterCounter(subSystem,
		"publish_failures_total",
		"Number of MQTT messages that could not be published")
	messagesReceivedTotal = metrics.MustRegisterCounter(subSystem,
		"messages_received_total",
		"Number of MQTT messages received")
	connectionsLostTotal = metrics.MustRegisterCounter(subSystem,
		"connections_lost_total",
		"Number of times the MQTT connection was lost")
	eventsDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"events_dropped_total",
		"Number of board events dropped because the forward queue was full")
	commandErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"command_errors_total",
		"Number of pin commands that failed",
		"command")
)
