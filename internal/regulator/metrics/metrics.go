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

// Package metrics exposes the regulator's counters and gauges to
// Prometheus. Every metric here is optional observability: nothing in the
// control path reads it back, so a Prometheus scrape hiccup can never affect
// a regulation decision.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vmath54/solarreg/internal/regulator/events"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solarreg_events_total",
		Help: "Count of FAST_DROP, FAST_RISE and regulation-window events published, by canonical event name.",
	}, []string{"code"})

	currentLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solarreg_current_limit_permille",
		Help: "The power limit (in tenths of a percent) last known to be applied at the ECU.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solarreg_http_request_duration_seconds",
		Help:    "HTTP Intake handler latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	modbusDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solarreg_modbus_transaction_duration_seconds",
		Help:    "Modbus/TCP transaction latency, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// RecordEvent increments the counter for a published regulation event.
func RecordEvent(code events.Code) {
	eventsTotal.WithLabelValues(code.String()).Inc()
}

// SetCurrentLimit updates the gauge tracking the last applied power limit.
func SetCurrentLimit(permille int) {
	currentLimit.Set(float64(permille))
}

// ObserveModbus records how long one Modbus transaction took.
func ObserveModbus(op string, d time.Duration) {
	modbusDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Instrument wraps an http.Handler with a per-path latency histogram.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		httpDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
