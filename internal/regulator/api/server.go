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

// Package api implements HTTP Intake: the single POST endpoint a Shelly grid
// meter (or anything speaking its wire format) pushes measurements to. Each
// request is handled under the regulation state lock end to end, so two
// concurrent measurements can never interleave a Modbus write.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vmath54/solarreg/internal/regulator/clock"
	"github.com/vmath54/solarreg/internal/regulator/control"
	"github.com/vmath54/solarreg/internal/regulator/metrics"
	"github.com/vmath54/solarreg/internal/regulator/modbus"
	"github.com/vmath54/solarreg/internal/regulator/reconcile"
	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
	"github.com/vmath54/solarreg/internal/regulator/timing"
)

// measurement is the wire shape of a POST body: {"injection_power": int,
// "solar_power": int}, both watts.
type measurement struct {
	InjectionPower *int `json:"injection_power"`
	SolarPower     *int `json:"solar_power"`
}

// response is the wire shape every request gets back, regardless of
// regulation outcome — only malformed input (or a non-POST method) earns a
// non-200 status.
type response struct {
	ReturnCode          int    `json:"return_code"`
	Message             string `json:"message"`
	PowerLimitValue     int    `json:"power_limit_value"`
	PowerLimitIncrement int    `json:"power_limit_increment"`
	SensorReadInterval  int    `json:"sensor_read_interval"`
}

// Server wires the Control Engine, the Modbus Port and the Telemetry
// Publisher behind one HTTP handler.
type Server struct {
	state   *state.State
	engine  *control.Engine
	port    *modbus.Port
	pub     *telemetry.Publisher
	clock   clock.Clock
	windows []control.Window
	log     *slog.Logger

	mux *http.ServeMux
}

// NewServer builds a Server ready to be handed to an http.Server as its
// Handler.
func NewServer(st *state.State, engine *control.Engine, port *modbus.Port, pub *telemetry.Publisher, clk clock.Clock, windows []control.Window, log *slog.Logger) *Server {
	s := &Server{state: st, engine: engine, port: port, pub: pub, clock: clk, windows: windows, log: log}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleMeasurement)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var m measurement
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil || m.InjectionPower == nil || m.SolarPower == nil {
		http.Error(w, "malformed measurement: want {injection_power, solar_power}", http.StatusBadRequest)
		return
	}
	injectionW, solarW := *m.InjectionPower, *m.SolarPower

	s.state.Lock.Lock()
	defer s.state.Lock.Unlock()

	resp := s.decide(injectionW, solarW)
	writeJSON(w, resp)
}

// decide runs the full Handler sequence from the Modbus/HTTP contract with
// the state lock already held.
func (s *Server) decide(injectionW, solarW int) response {
	now := s.clock.Now()
	s.state.LastMeasurementTime = now
	if s.state.WatchdogTriggered {
		s.state.WatchdogTriggered = false
		s.log.Info("watchdog cleared: measurement received")
	}

	if s.state.CurrentLimit < 0 {
		rc := reconcile.Read(s.state, s.port, s.pub, s.clock, timing.ModbusRecurrentErrorCount)
		switch rc {
		case reconcile.RecurrentFailure:
			return response{ReturnCode: 3, Message: "recurrent modbus failure, current limit unknown", PowerLimitValue: -1, SensorReadInterval: -1}
		case reconcile.ModbusFailure:
			return response{ReturnCode: 2, Message: "modbus failure, current limit unknown", PowerLimitValue: -1, SensorReadInterval: -1}
		}
	}

	if !control.InAnyWindow(s.windows, now) {
		return response{
			ReturnCode:         0,
			Message:            "outside regulation window",
			PowerLimitValue:    s.state.CurrentLimit,
			SensorReadInterval: timing.PeriodicTaskIntervalS,
		}
	}

	decision, err := s.engine.Decide(s.state, injectionW, solarW)
	if err != nil {
		// CurrentLimit went from known to Unknown between the reconciling
		// read above and here, which Decide itself never does; this path
		// only exists to satisfy the type, not a reachable runtime state.
		return response{ReturnCode: 3, Message: err.Error(), PowerLimitValue: -1, SensorReadInterval: -1}
	}

	s.log.Debug("measurement", "injection_w", injectionW, "solar_w", solarW, "current_limit", s.state.CurrentLimit)
	s.log.Info("decision", "reason", decision.Reason, "new_limit", decision.NewLimit, "delta", decision.Delta)

	s.pub.PublishRun(telemetry.RunSampleFromDecision(solarW, injectionW, decision.NewLimit, decision.NextSampleDelay))

	returnCode := 0
	message := decision.Reason
	if decision.NewLimit != s.state.CurrentLimit {
		status := s.port.WritePowerLimit(decision.NewLimit)
		if status != modbus.OK {
			rc := reconcile.RecordFailure(s.state, s.pub, timing.ModbusRecurrentErrorCount)
			if rc == reconcile.RecurrentFailure {
				returnCode = 3
				message = "recurrent modbus failure on write"
			} else {
				returnCode = 2
				message = "modbus write failed: " + status.String()
			}
		} else {
			reconcile.RecordSuccess(s.state, s.pub)
			s.state.CurrentLimit = decision.NewLimit
		}
	}

	if decision.Event != nil {
		s.pub.Event(*decision.Event)
		metrics.RecordEvent(decision.Event.Code)
	}
	metrics.SetCurrentLimit(s.state.CurrentLimit)

	return response{
		ReturnCode:          returnCode,
		Message:             message,
		PowerLimitValue:     s.state.CurrentLimit,
		PowerLimitIncrement: decision.Delta,
		SensorReadInterval:  decision.NextSampleDelay,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.state.Lock.Lock()
	last := s.state.LastMeasurementTime
	s.state.Lock.Unlock()

	if last.IsZero() || s.clock.Now().Sub(last) > 2*timing.WatchdogTimeout() {
		http.Error(w, "stale", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
