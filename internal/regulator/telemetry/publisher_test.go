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

package telemetry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/vmath54/solarreg/internal/regulator/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDisabledModeNeverDials(t *testing.T) {
	p := New(Config{Mode: Disabled, Broker: "tcp://127.0.0.1:1"}, discardLogger())
	// Broker is unreachable; if Disabled didn't short-circuit before dialing,
	// this would block for the connect timeout.
	p.PublishRun(RunSample{Solar: 100, Injection: 10, PowerLimit: 100, DelaySecond: -1})
	p.Event(events.Event{})
	if p.lastPayload() != "" {
		t.Fatal("disabled publisher should never record a run payload")
	}
}

func TestRunSampleFromDecisionRendersPercent(t *testing.T) {
	s := RunSampleFromDecision(500, 80, 990, 5)
	if s.PowerLimit != 99.0 {
		t.Fatalf("PowerLimit = %v, want 99.0", s.PowerLimit)
	}
	if s.Solar != 500 || s.Injection != 80 || s.DelaySecond != 5 {
		t.Fatalf("unexpected sample: %+v", s)
	}
}
