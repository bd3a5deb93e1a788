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
	"errors"
	"fmt"
	"math"

	"github.com/vmath54/solarreg/internal/regulator/events"
	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/pkg/permille"
)

// ErrLimitUnknown is returned by Decide when state.CurrentLimit is still
// permille.Unknown. The caller (HTTP Intake) must perform a reconciling
// Modbus read and retry; the Control Engine never guesses a starting limit.
var ErrLimitUnknown = errors.New("control: current limit unknown, reconciling read required")

// Decision is the outcome of one Decide call.
type Decision struct {
	NewLimit        int // permille
	Delta           int // signed permille, NewLimit - limit before this call
	Reason          string
	NextSampleDelay int // seconds, or DefaultDelay for the meter's own cadence
	Event           *events.Event
}

// Engine evaluates the four-tier algorithm against a Config. It holds no
// state of its own — all mutable counters live on the state.State the
// caller passes in, already locked.
type Engine struct {
	Config Config
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{Config: cfg}
}

// Decide applies the four-tier algorithm to one measurement. The caller must
// hold s.Lock for the duration of the call; Decide mutates s's streak
// counters and FastCooldown as a side effect, matching the design note that
// these are "a mutable view of streak counters" shared with the pipeline.
func (e *Engine) Decide(s *state.State, injectionW, solarW int) (Decision, error) {
	if s.CurrentLimit == permille.Unknown {
		return Decision{}, ErrLimitUnknown
	}

	if s.FastCooldown > 0 {
		s.FastCooldown--
	}

	cfg := e.Config
	current := s.CurrentLimit

	// Algorithm 1 — Fast Rise.
	if injectionW < cfg.RiseThresh {
		s.ConsecDeepImport++
	} else {
		s.ConsecDeepImport = 0
	}
	if cfg.RiseEnabled && s.ConsecDeepImport >= cfg.RiseCount && s.FastCooldown == 0 && current < cfg.RiseLimit {
		s.FastCooldown = cfg.FastCooldownNB
		s.ConsecDeepImport = 0
		newLimit := cfg.RiseLimit
		ev := events.New(events.FastRise, fmt.Sprintf("%d -> %d permille (injection %dW)", current, newLimit, injectionW))
		return Decision{
			NewLimit:        newLimit,
			Delta:           newLimit - current,
			Reason:          "Importation très forte",
			NextSampleDelay: cfg.RiseDelay,
			Event:           &ev,
		}, nil
	}

	// Algorithm 2 — Fast Drop.
	if injectionW > cfg.DropThresh {
		s.ConsecHighInjection++
	} else {
		s.ConsecHighInjection = 0
	}
	skipImportLock := false
	if cfg.DropEnabled && s.ConsecHighInjection >= cfg.DropCount && current > cfg.DropLimitThresh && solarW > 0 && s.FastCooldown == 0 {
		est := int(math.Round(float64(solarW-injectionW) / float64(cfg.TotalRatedW) * 1000))
		if est < current {
			s.FastCooldown = cfg.FastCooldownNB
			ev := events.New(events.FastDrop, fmt.Sprintf("%d -> %d permille (injection %dW, solar %dW)", current, est, injectionW, solarW))
			return Decision{
				NewLimit:        est,
				Delta:           est - current,
				Reason:          "Injection haute",
				NextSampleDelay: cfg.DropDelay,
				Event:           &ev,
			}, nil
		}
		// est >= current: the drop estimate would not actually reduce
		// production. Skip Import Lock (injection is high, not negative,
		// so it could never fire here anyway) and go straight to the table.
		skipImportLock = true
	}

	// Algorithm 3 — Import Lock.
	if !skipImportLock {
		if injectionW < 0 {
			s.ConsecImport++
		} else {
			s.ConsecImport = 0
		}
		if s.ConsecImport >= cfg.ImportLockCount {
			s.ConsecImport = 0
			return Decision{
				NewLimit:        permille.Max,
				Delta:           permille.Max - current,
				Reason:          "Importation continue",
				NextSampleDelay: DefaultDelay,
			}, nil
		}
	}

	// Algorithm 4 — Threshold Table.
	return e.decideThresholdTable(current, injectionW), nil
}

func (e *Engine) decideThresholdTable(current, injectionW int) Decision {
	table := e.Config.Table
	for i, row := range table {
		if row.ThresholdW > injectionW {
			continue
		}
		reason := fmt.Sprintf(">%dW", row.ThresholdW)
		if i > 0 {
			reason = fmt.Sprintf("%dW..<%dW", row.ThresholdW, table[i-1].ThresholdW)
		}

		if row.IncrementPermille == 0 {
			return Decision{
				NewLimit:        current,
				Delta:           0,
				Reason:          reason,
				NextSampleDelay: row.DelayS,
			}
		}

		newLimit := permille.Clamp(current + row.IncrementPermille)
		delay := row.DelayS
		if current == permille.Max && newLimit == permille.Max {
			delay = DefaultDelay
		}
		newLimit = permille.DodgeBuggy(newLimit, row.IncrementPermille > 0)

		return Decision{
			NewLimit:        newLimit,
			Delta:           newLimit - current,
			Reason:          reason,
			NextSampleDelay: delay,
		}
	}
	// The last row's threshold (-99999) matches every real injection value,
	// so this is unreachable for a well-formed table.
	return Decision{NewLimit: current, Delta: 0, Reason: "no matching row", NextSampleDelay: DefaultDelay}
}
