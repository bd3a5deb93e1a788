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

// Package reconcile implements handle_state_and_reads: the shared reconciling
// Modbus read used on cold start, on regulation-window entry and on the
// periodic 15-minute resync. It is the one place that interprets a raw
// register read against RegulationState and decides what it means.
package reconcile

import (
	"fmt"

	"github.com/vmath54/solarreg/internal/regulator/clock"
	"github.com/vmath54/solarreg/internal/regulator/events"
	"github.com/vmath54/solarreg/internal/regulator/modbus"
	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
	"github.com/vmath54/solarreg/pkg/permille"
)

// ReturnCode mirrors the HTTP Intake response codes that a reconciling read
// can surface to its caller.
type ReturnCode int

const (
	OK               ReturnCode = 0
	DifferentLimit   ReturnCode = 1
	ModbusFailure    ReturnCode = 2
	RecurrentFailure ReturnCode = 3
)

// Read performs one reconciling Modbus read and folds the result into s. The
// caller must hold s.Lock. recurrentThreshold is
// MODBUS_RECURRENT_ERROR_COUNT (default 5).
func Read(s *state.State, port *modbus.Port, pub *telemetry.Publisher, clk clock.Clock, recurrentThreshold int) ReturnCode {
	value, status := port.ReadPowerLimit()
	now := clk.Now()

	if status != modbus.OK {
		return RecordFailure(s, pub, recurrentThreshold)
	}

	RecordSuccess(s, pub)
	s.LastReadTime = now

	if value == permille.Buggy {
		port.WritePowerLimit(permille.Max)
		pub.Event(events.New(events.PowerLimit30, "corrected to 100.0%"))
		value = permille.Max
	}

	rc := OK
	if s.CurrentLimit != permille.Unknown && s.CurrentLimit != value {
		pub.Event(events.New(events.PowerLimitDiff, formatDiff(s.CurrentLimit, value)))
		rc = DifferentLimit
	}
	s.CurrentLimit = value
	return rc
}

// RecordFailure registers one failed Modbus transaction against s, emitting
// ModbusErrorStart the moment the error streak begins. Every caller that
// touches s.ConsecModbusErrors on failure — the reconciling read, the HTTP
// Intake write path — must go through this helper, or the
// ModbusErrorStart/ModbusErrorEnd pair stops alternating strictly.
func RecordFailure(s *state.State, pub *telemetry.Publisher, recurrentThreshold int) ReturnCode {
	wasZero := s.ConsecModbusErrors == 0
	s.ConsecModbusErrors++
	if wasZero {
		pub.Event(events.New(events.ModbusErrorStart, ""))
	}
	if s.ConsecModbusErrors >= recurrentThreshold {
		return RecurrentFailure
	}
	return ModbusFailure
}

// RecordSuccess clears s's error streak, emitting ModbusErrorEnd if a streak
// was in progress. See RecordFailure for why every Modbus transaction site
// must call this pair instead of touching ConsecModbusErrors directly.
func RecordSuccess(s *state.State, pub *telemetry.Publisher) {
	if s.ConsecModbusErrors > 0 {
		pub.Event(events.New(events.ModbusErrorEnd, ""))
	}
	s.ConsecModbusErrors = 0
}

func formatDiff(memorised, read int) string {
	return fmt.Sprintf("memorised=%d read=%d", memorised, read)
}
