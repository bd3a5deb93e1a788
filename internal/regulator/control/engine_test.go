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

package control

import (
	"testing"

	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/pkg/permille"
)

func newState(limit int) *state.State {
	s := state.New()
	s.CurrentLimit = limit
	return s
}

func TestDecideUnknownLimitErrors(t *testing.T) {
	e := NewEngine(DefaultConfig())
	_, err := e.Decide(state.New(), 0, 0)
	if err != ErrLimitUnknown {
		t.Fatalf("err = %v, want ErrLimitUnknown", err)
	}
}

// Scenario 1: steady target band.
func TestDecideSteadyTargetBand(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := newState(1000)
	d, err := e.Decide(s, 15, 500)
	if err != nil {
		t.Fatal(err)
	}
	if d.NewLimit != 1000 || d.Delta != 0 || d.NextSampleDelay != DefaultDelay {
		t.Fatalf("got %+v", d)
	}
}

// Scenario 2: moderate injection, row 60 -> -10.
func TestDecideModerateInjection(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := newState(1000)
	d, err := e.Decide(s, 80, 900)
	if err != nil {
		t.Fatal(err)
	}
	if d.NewLimit != 990 || d.Delta != -10 || d.NextSampleDelay != 5 {
		t.Fatalf("got %+v", d)
	}
}

// Scenario 3: fast drop trigger on the second consecutive high-injection
// sample.
func TestDecideFastDropTrigger(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := newState(900)

	d1, err := e.Decide(s, 500, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if d1.Event != nil {
		t.Fatalf("first sample should not fire yet: %+v", d1)
	}

	d2, err := e.Decide(s, 500, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if d2.NewLimit != 568 {
		t.Fatalf("NewLimit = %d, want 568", d2.NewLimit)
	}
	if d2.Event == nil || d2.Event.Code.String() != "FAST_DROP" {
		t.Fatalf("event = %+v, want FAST_DROP", d2.Event)
	}
	if s.FastCooldown != 5 {
		t.Fatalf("FastCooldown = %d, want 5", s.FastCooldown)
	}
}

// Scenario 4: import lock fires on the 15th consecutive import sample.
func TestDecideImportLock(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := newState(500)

	var last Decision
	for i := 0; i < 15; i++ {
		d, err := e.Decide(s, -10, 0)
		if err != nil {
			t.Fatal(err)
		}
		last = d
	}
	if last.NewLimit != permille.Max {
		t.Fatalf("NewLimit = %d, want %d", last.NewLimit, permille.Max)
	}
	if last.NextSampleDelay != DefaultDelay {
		t.Fatalf("NextSampleDelay = %d, want %d", last.NextSampleDelay, DefaultDelay)
	}
	if s.ConsecImport != 0 {
		t.Fatalf("ConsecImport = %d, want reset to 0", s.ConsecImport)
	}
}

func TestDecideNeverReturnsBuggyLimit(t *testing.T) {
	e := NewEngine(DefaultConfig())
	// current + row{-30,+10} lands exactly on permille.Buggy (300) without
	// the dodge.
	s := newState(permille.Buggy - 10)
	d, err := e.Decide(s, -20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.NewLimit == permille.Buggy {
		t.Fatalf("NewLimit landed on the buggy value: %+v", d)
	}
}

func TestDecideClampsToBounds(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := newState(permille.Min)
	d, err := e.Decide(s, 1000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.NewLimit < permille.Min || d.NewLimit > permille.Max {
		t.Fatalf("NewLimit = %d, out of bounds", d.NewLimit)
	}
}

// Fast Rise and Fast Drop must not fire within FastCooldownNB decisions of
// each other.
func TestFastAlgorithmsRespectCooldown(t *testing.T) {
	e := NewEngine(DefaultConfig())
	// Below RiseLimit (1000) so Fast Rise can fire, above DropLimitThresh
	// (500) so the subsequent Fast Drop check is actually exercised instead
	// of being vacuously skipped.
	s := newState(600)

	// Two deep-import samples fire Fast Rise.
	e.Decide(s, -900, 0)
	d, err := e.Decide(s, -900, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Event == nil || d.Event.Code.String() != "FAST_RISE" {
		t.Fatalf("expected FAST_RISE to fire, got %+v", d)
	}

	// Immediately swing to high injection; Fast Drop must not fire again
	// until the cooldown drains.
	for i := 0; i < e.Config.FastCooldownNB-1; i++ {
		d, err := e.Decide(s, 500, 2000)
		if err != nil {
			t.Fatal(err)
		}
		if d.Event != nil && d.Event.Code.String() == "FAST_DROP" {
			t.Fatalf("FAST_DROP fired during cooldown at iteration %d", i)
		}
	}
}
