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

// Package control implements the pure decision function at the heart of the
// regulator: given the current RegulationState and a fresh measurement, it
// picks exactly one of four algorithms — Fast Rise, Fast Drop, Import Lock,
// Threshold Table — in that priority order, and returns the new power-limit
// setpoint. The function touches no network, clock or disk; every external
// effect (the Modbus write, the telemetry publish) is applied by the caller.
package control

// ThresholdRow is one row of the gradual regulation table. Rows are matched
// top-down; the first row whose ThresholdW is <= the measured injection wins.
type ThresholdRow struct {
	ThresholdW        int
	IncrementPermille int
	DelayS            int // seconds, or DefaultDelay to defer to the meter's own cadence
}

// DefaultDelay signals "use the meter's own default sampling interval"
// instead of an advisory delay in seconds.
const DefaultDelay = -1

// DefaultTable is the factory threshold table from the regulator's design
// spec, pre-sorted descending by ThresholdW as the matching rule requires.
func DefaultTable() []ThresholdRow {
	return []ThresholdRow{
		{600, -200, 5},
		{250, -100, 5},
		{130, -50, 5},
		{60, -10, 5},
		{30, -5, DefaultDelay},
		{0, 0, DefaultDelay},
		{-30, 10, DefaultDelay},
		{-100, 20, 5},
		{-200, 50, 5},
		{-600, 100, 5},
		{-99999, 200, 5},
	}
}

// Config holds every tunable of the four-tier algorithm. The zero value is
// not usable; build one with DefaultConfig and override fields as needed.
// The daemon uses DefaultConfig unchanged; no CLI flag sets these fields.
type Config struct {
	// Algorithm 1 — Fast Rise.
	RiseEnabled bool
	RiseThresh  int // W, negative; injection below this counts as deep import
	RiseCount   int // consecutive deep-import samples required to fire
	RiseLimit   int // permille jumped to
	RiseDelay   int // advisory delay after firing, seconds

	// Algorithm 2 — Fast Drop.
	DropEnabled     bool
	DropThresh      int // W; injection above this counts as high injection
	DropCount       int // consecutive high-injection samples required to fire
	DropLimitThresh int // permille; current_limit must exceed this to fire
	DropDelay       int // advisory delay after firing, seconds

	// Algorithm 3 — Import Lock.
	ImportLockCount int // consecutive import samples required to snap to Max

	// Shared.
	FastCooldownNB int // decisions to suppress further Fast Rise/Drop firings
	TotalRatedW    int // fleet nameplate power, used by Fast Drop's estimate

	// Algorithm 4 — Threshold Table.
	Table []ThresholdRow
}

// DefaultConfig returns the factory configuration: both fast algorithms
// enabled, the default table, and the constants named in the design spec.
func DefaultConfig() Config {
	return Config{
		RiseEnabled: true,
		RiseThresh:  -800,
		RiseCount:   2,
		RiseLimit:   1000,
		RiseDelay:   10,

		DropEnabled:     true,
		DropThresh:      30,
		DropCount:       2,
		DropLimitThresh: 500,
		DropDelay:       10,

		ImportLockCount: 15,

		FastCooldownNB: 5,
		TotalRatedW:    2640,

		Table: DefaultTable(),
	}
}
