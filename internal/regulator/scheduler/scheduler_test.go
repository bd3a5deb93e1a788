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

package scheduler

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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func discardPublisher() *telemetry.Publisher {
	return telemetry.New(telemetry.Config{Mode: telemetry.Disabled}, discardLogger())
}

// Scenario 6: watchdog forces MAX_LIMIT after WATCHDOG_TIMEOUT_S of silence.
func TestWatchdogFiresAfterSilence(t *testing.T) {
	s := state.New()
	s.CurrentLimit = 500
	s.LastMeasurementTime = time.Unix(0, 0)

	port := modbus.NewFakePort(500, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0).Add(61 * time.Minute))

	r := NewRunner(s, port, discardPublisher(), clk, nil, discardLogger())
	r.tickWatchdog()

	if !s.WatchdogTriggered {
		t.Fatal("expected WatchdogTriggered to be set")
	}
	if s.CurrentLimit != permille.Max {
		t.Fatalf("CurrentLimit = %d, want %d", s.CurrentLimit, permille.Max)
	}
	if port.LastWritten() != permille.Max {
		t.Fatalf("LastWritten = %d, want %d", port.LastWritten(), permille.Max)
	}
}

func TestWatchdogDoesNotFireInsideTimeout(t *testing.T) {
	s := state.New()
	s.CurrentLimit = 500
	s.LastMeasurementTime = time.Unix(0, 0)

	port := modbus.NewFakePort(500, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0).Add(30 * time.Minute))

	r := NewRunner(s, port, discardPublisher(), clk, nil, discardLogger())
	r.tickWatchdog()

	if s.WatchdogTriggered {
		t.Fatal("watchdog fired before the timeout elapsed")
	}
}

func TestWatchdogDoesNotRefireOnceTriggered(t *testing.T) {
	s := state.New()
	s.LastMeasurementTime = time.Unix(0, 0)
	s.WatchdogTriggered = true

	port := modbus.NewFakePort(500, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0).Add(2 * time.Hour))

	r := NewRunner(s, port, discardPublisher(), clk, nil, discardLogger())
	r.tickWatchdog()

	if port.LastWritten() != 0 {
		t.Fatalf("expected no write while already triggered, got %d", port.LastWritten())
	}
}

func TestPeriodicTaskWritesMaxOnWindowTransition(t *testing.T) {
	s := state.New()
	s.CurrentLimit = 400
	s.WasInWindow = false

	port := modbus.NewFakePort(400, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0))

	r := NewRunner(s, port, discardPublisher(), clk, nil, discardLogger()) // nil windows => always in window
	r.tickPeriodic()

	if !s.WasInWindow {
		t.Fatal("expected WasInWindow to flip true")
	}
	if port.LastWritten() != permille.Max {
		t.Fatalf("LastWritten = %d, want %d on window entry", port.LastWritten(), permille.Max)
	}
}

func TestPeriodicTaskReconcilesAfterReadInterval(t *testing.T) {
	s := state.New()
	s.CurrentLimit = 400
	s.WasInWindow = true
	s.LastReadTime = time.Unix(0, 0)

	port := modbus.NewFakePort(777, modbus.OK)
	clk := clock.NewFrozen(time.Unix(0, 0).Add(20 * time.Minute))

	r := NewRunner(s, port, discardPublisher(), clk, nil, discardLogger())
	r.tickPeriodic()

	if s.CurrentLimit != 777 {
		t.Fatalf("CurrentLimit = %d, want reconciled to 777", s.CurrentLimit)
	}
}
