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
	"github.com/duinoio/pcduino-io/pkg/metrics"
)

const (
	subSystem = "bridge"
)

var (
	// Total number of operations executed on the I2C bus
	i2cExecuteCounters = metrics.MustRegisterCounterVec(subSystem,
		"execute_total",
		"Total number of operations executed on the I2C bus",
		"address")
	// Total number of failed operations on the I2C bus
	i2cExecuteErrorCounters = metrics.MustRegisterCounterVec(subSystem,
		"execute_error_total",
		"Total number of failed operations on the I2C bus",
		"address")

	// Bus recovery metrics
	i2cRecoveryAttemptsTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_attempts_total",
		"Total number of I2C bus recovery attempts")
	i2cRecoveryFailedTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_failed_total",
		"Total number of failed I2C bus recovery attempts")
	i2cRecoverySucceededTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_succeeded_total",
		"Total number of succeeded I2C bus recovery attempts")
	i2cRecoverySkippedTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_skipped_total",
		"Total number of skipped I2C bus recovery attempts")

	// Total number of sysfs accesses that failed
	sysfsErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"sysfs_errors_total",
		"Total number of failed sysfs accesses",
		"op")
	// Total number of status led activity blinks
	activityBlinksTotal = metrics.MustRegisterCounter(subSystem,
		"activity_blinks_total",
		"Total number of status led activity blinks")
)
