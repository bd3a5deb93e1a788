// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package timing holds the handful of interval constants shared between the
// HTTP Intake, the Periodic Task and the Watchdog, so the three places that
// reference "how often" agree by construction instead of by convention.
package timing

import "time"

const (
	// PeriodicTaskIntervalS is how often the Periodic Task scheduler wakes,
	// and the advisory delay an out-of-window HTTP response carries.
	PeriodicTaskIntervalS = 60

	// PeriodicReadIntervalS is the maximum age of the last reconciling read
	// before the Periodic Task forces a fresh one while inside a window.
	PeriodicReadIntervalS = 15 * 60

	// WatchdogTimeoutS is how long the watchdog tolerates silence from the
	// meter before forcing MAX_LIMIT.
	WatchdogTimeoutS = 60 * 60

	// ModbusRecurrentErrorCount is the consecutive-failure threshold past
	// which a Modbus status is upgraded to a recurrent failure.
	ModbusRecurrentErrorCount = 5
)

// Duration helpers, kept next to the raw second counts they derive from.
func PeriodicTaskInterval() time.Duration { return PeriodicTaskIntervalS * time.Second }
func WatchdogTimeout() time.Duration      { return WatchdogTimeoutS * time.Second }
func PeriodicReadInterval() time.Duration { return PeriodicReadIntervalS * time.Second }
