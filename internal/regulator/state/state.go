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

// Package state holds the one authoritative RegulationState record for the
// process: the applied power limit, timing counters and the per-algorithm
// streak counters the Control Engine consumes. It is a single struct behind
// a single mutex, by design — there is exactly one installation to regulate,
// so there is nothing to shard.
package state

import (
	"sync"
	"time"

	"github.com/vmath54/solarreg/pkg/permille"
)

// State is the singleton regulation record. Every field below Lock must only
// be read or written while Lock is held.
type State struct {
	Lock sync.Mutex

	CurrentLimit int // permille, permille.Unknown until the first reconciling read

	LastReadTime        time.Time
	LastMeasurementTime time.Time

	ConsecModbusErrors  int
	ConsecImport        int
	ConsecHighInjection int
	ConsecDeepImport    int
	FastCooldown        int

	WatchdogTriggered bool
	WasInWindow       bool

	LastPublishedRunPayload string
}

// New returns a fresh RegulationState with CurrentLimit unknown, forcing an
// immediate reconciling read before the first decision.
func New() *State {
	return &State{CurrentLimit: permille.Unknown}
}
