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

package reconcile

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vmath54/solarreg/internal/regulator/clock"
	"github.com/vmath54/solarreg/internal/regulator/modbus"
	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
	"github.com/vmath54/solarreg/pkg/permille"
)

func discardPublisher() *telemetry.Publisher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return telemetry.New(telemetry.Config{Mode: telemetry.Disabled}, log)
}

// Scenario 5: buggy value recovery.
func TestReadBuggyValueRecovery(t *testing.T) {
	s := state.New()
	port := modbus.NewFakePort(permille.Buggy, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0))

	rc := Read(s, port, discardPublisher(), clk, 5)
	if rc != OK {
		t.Fatalf("rc = %v, want OK", rc)
	}
	if s.CurrentLimit != permille.Max {
		t.Fatalf("CurrentLimit = %d, want %d", s.CurrentLimit, permille.Max)
	}
	if port.LastWritten() != permille.Max {
		t.Fatalf("LastWritten = %d, want corrective write to %d", port.LastWritten(), permille.Max)
	}
}

func TestReadStateDivergence(t *testing.T) {
	s := state.New()
	s.CurrentLimit = 500
	port := modbus.NewFakePort(600, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0))

	rc := Read(s, port, discardPublisher(), clk, 5)
	if rc != DifferentLimit {
		t.Fatalf("rc = %v, want DifferentLimit", rc)
	}
	if s.CurrentLimit != 600 {
		t.Fatalf("CurrentLimit = %d, want ECU value 600", s.CurrentLimit)
	}
}

func TestReadRecurrentFailureThreshold(t *testing.T) {
	s := state.New()
	port := modbus.NewFakePort(0, modbus.CommunicationError)
	clk := clock.NewFrozen(time.Unix(0, 0))

	var last ReturnCode
	for i := 0; i < 5; i++ {
		last = Read(s, port, discardPublisher(), clk, 5)
	}
	if last != RecurrentFailure {
		t.Fatalf("rc on 5th failure = %v, want RecurrentFailure", last)
	}
	if s.ConsecModbusErrors != 5 {
		t.Fatalf("ConsecModbusErrors = %d, want 5", s.ConsecModbusErrors)
	}
}

func TestReadSuccessResetsErrorCounter(t *testing.T) {
	s := state.New()
	s.ConsecModbusErrors = 3
	port := modbus.NewFakePort(500, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0))

	Read(s, port, discardPublisher(), clk, 5)
	if s.ConsecModbusErrors != 0 {
		t.Fatalf("ConsecModbusErrors = %d, want reset to 0", s.ConsecModbusErrors)
	}
}
