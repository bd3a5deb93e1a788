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

// Package scheduler runs the two background workers that never touch HTTP:
// the Periodic Task, which detects regulation-window transitions and keeps
// the memorised limit in sync with the ECU every 15 minutes, and the
// Watchdog, which forces MAX_LIMIT after an hour of meter silence. Both are
// time.Ticker-driven goroutines owned by one Runner and stopped together.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vmath54/solarreg/internal/regulator/clock"
	"github.com/vmath54/solarreg/internal/regulator/control"
	"github.com/vmath54/solarreg/internal/regulator/events"
	"github.com/vmath54/solarreg/internal/regulator/metrics"
	"github.com/vmath54/solarreg/internal/regulator/modbus"
	"github.com/vmath54/solarreg/internal/regulator/reconcile"
	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
	"github.com/vmath54/solarreg/internal/regulator/timing"
	"github.com/vmath54/solarreg/pkg/permille"
)

// Runner owns the Periodic Task and Watchdog goroutines.
type Runner struct {
	state   *state.State
	port    *modbus.Port
	pub     *telemetry.Publisher
	clock   clock.Clock
	windows []control.Window
	log     *slog.Logger

	periodicInterval time.Duration
	watchdogInterval time.Duration
	readInterval     time.Duration
	watchdogTimeout  time.Duration
	recurrentThresh  int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRunner builds a Runner with the default factory intervals from the
// timing package; tests override them after construction.
func NewRunner(st *state.State, port *modbus.Port, pub *telemetry.Publisher, clk clock.Clock, windows []control.Window, log *slog.Logger) *Runner {
	return &Runner{
		state:            st,
		port:             port,
		pub:              pub,
		clock:            clk,
		windows:          windows,
		log:              log,
		periodicInterval: timing.PeriodicTaskInterval(),
		watchdogInterval: timing.PeriodicTaskInterval(),
		readInterval:     timing.PeriodicReadInterval(),
		watchdogTimeout:  timing.WatchdogTimeout(),
		recurrentThresh:  timing.ModbusRecurrentErrorCount,
		stop:             make(chan struct{}),
	}
}

// Start launches both background workers. Call Stop to shut them down.
func (r *Runner) Start() {
	r.wg.Add(2)
	go r.runPeriodicTask()
	go r.runWatchdog()
}

// Stop signals both workers to exit and waits for them to do so. Safe to
// call once; the supervisor calls it after the HTTP server has stopped
// accepting new requests.
func (r *Runner) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Runner) runPeriodicTask() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.periodicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tickPeriodic()
		}
	}
}

func (r *Runner) tickPeriodic() {
	r.state.Lock.Lock()
	defer r.state.Lock.Unlock()

	now := r.clock.Now()
	inWindow := control.InAnyWindow(r.windows, now)
	if inWindow != r.state.WasInWindow {
		r.port.WritePowerLimit(permille.Max)
		r.state.CurrentLimit = permille.Max
		if inWindow {
			ev := events.New(events.RegulationWindowsIn, "")
			r.pub.Event(ev)
			metrics.RecordEvent(ev.Code)
			r.log.Info("regulation window entered")
		} else {
			ev := events.New(events.RegulationWindowsOut, "")
			r.pub.Event(ev)
			metrics.RecordEvent(ev.Code)
			r.log.Info("regulation window exited")
		}
		r.state.WasInWindow = inWindow
	}

	if inWindow && (r.state.LastReadTime.IsZero() || now.Sub(r.state.LastReadTime) > r.readInterval) {
		reconcile.Read(r.state, r.port, r.pub, r.clock, r.recurrentThresh)
	}
	metrics.SetCurrentLimit(r.state.CurrentLimit)
}

func (r *Runner) runWatchdog() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tickWatchdog()
		}
	}
}

func (r *Runner) tickWatchdog() {
	r.state.Lock.Lock()
	defer r.state.Lock.Unlock()

	if r.state.WatchdogTriggered {
		return
	}
	now := r.clock.Now()
	if r.state.LastMeasurementTime.IsZero() || now.Sub(r.state.LastMeasurementTime) <= r.watchdogTimeout {
		return
	}
	r.port.WritePowerLimit(permille.Max)
	r.state.CurrentLimit = permille.Max
	r.state.WatchdogTriggered = true
	metrics.SetCurrentLimit(r.state.CurrentLimit)
	r.log.Warn("watchdog triggered: no measurement received", "since", r.state.LastMeasurementTime)
}
