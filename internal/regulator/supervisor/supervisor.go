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

// Package supervisor starts and stops the daemon's long-lived workers: the
// HTTP server, the Periodic Task, and the Watchdog. It owns the shutdown
// ordering the rest of the tree assumes — HTTP stops first, then background
// workers, then the telemetry connection last — and configures the logging
// sink the CLI selected.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmittmann/tint"

	"github.com/vmath54/solarreg/internal/regulator/api"
	"github.com/vmath54/solarreg/internal/regulator/clock"
	"github.com/vmath54/solarreg/internal/regulator/config"
	"github.com/vmath54/solarreg/internal/regulator/control"
	"github.com/vmath54/solarreg/internal/regulator/metrics"
	"github.com/vmath54/solarreg/internal/regulator/modbus"
	"github.com/vmath54/solarreg/internal/regulator/scheduler"
	"github.com/vmath54/solarreg/internal/regulator/state"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
)

// Supervisor owns every long-lived component the daemon starts.
type Supervisor struct {
	cfg config.Config
	log *slog.Logger

	state     *state.State
	port      *modbus.Port
	publisher *telemetry.Publisher
	runner    *scheduler.Runner

	httpServer    *http.Server
	metricsServer *http.Server
}

// New builds a Supervisor from a parsed Config. Logging is configured here,
// before anything else, so every subsequent step can log.
func New(cfg config.Config) (*Supervisor, error) {
	log, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logging setup: %w", err)
	}

	st := state.New()
	port := modbus.NewPort(cfg.ECUHost, cfg.ModbusPort, byte(cfg.ModbusSlave))
	publisher := telemetry.New(telemetry.Config{
		Broker:    cfg.MQTTBroker,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		RootTopic: cfg.MQTTTopic,
		Mode:      parseMQTTMode(cfg.MQTTMode),
	}, log)

	engine := control.NewEngine(control.DefaultConfig())
	clk := clock.Real{}

	server := api.NewServer(st, engine, port, publisher, clk, cfg.Windows, log)
	runner := scheduler.NewRunner(st, port, publisher, clk, cfg.Windows, log)

	httpAddr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	httpServer := &http.Server{Addr: httpAddr, Handler: metrics.Instrument(server)}

	s := &Supervisor{
		cfg:        cfg,
		log:        log,
		state:      st,
		port:       port,
		publisher:  publisher,
		runner:     runner,
		httpServer: httpServer,
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	return s, nil
}

// Run starts every worker, blocks until SIGINT/SIGTERM, then shuts down in
// order: HTTP server, background workers, telemetry connection last.
func (s *Supervisor) Run() error {
	s.log.Info("starting", "ecu_host", s.cfg.ECUHost, "http_addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	s.runner.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-sig:
		s.log.Info("shutdown signal received")
	}

	s.shutdown()
	return nil
}

func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", "err", err)
	}
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}

	s.runner.Stop()
	s.publisher.Disconnect()
	s.log.Info("shutdown complete")
}

// buildLogger selects one slog handler by CLI flag: a plain text handler for
// --logfile, syslog for --syslog-facility, and otherwise stdout — tint with
// --no-daemon, a plain text handler without it. config.Parse already rejects
// --logfile and --syslog-facility being set together.
func buildLogger(cfg config.Config) (*slog.Logger, error) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open logfile: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.LogLevel})), nil
	}

	if cfg.SyslogFacility != "" {
		priority, err := parseSyslogFacility(cfg.SyslogFacility)
		if err != nil {
			return nil, err
		}
		w, err := syslog.New(priority|syslog.LOG_INFO, "solarreg")
		if err != nil {
			return nil, fmt.Errorf("dial syslog: %w", err)
		}
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})), nil
	}

	if cfg.NoDaemon {
		// Foreground/interactive run: colorize for a developer at a
		// terminal, the way the teacher's own examples use tint.
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: "15:04:05",
		})), nil
	}

	// Detached/supervised run (the default): no ANSI escapes, since stdout
	// is most likely captured by systemd/journald or redirected to a file.
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})), nil
}

func parseSyslogFacility(name string) (syslog.Priority, error) {
	facilities := map[string]syslog.Priority{
		"local0": syslog.LOG_LOCAL0, "local1": syslog.LOG_LOCAL1,
		"local2": syslog.LOG_LOCAL2, "local3": syslog.LOG_LOCAL3,
		"local4": syslog.LOG_LOCAL4, "local5": syslog.LOG_LOCAL5,
		"local6": syslog.LOG_LOCAL6, "local7": syslog.LOG_LOCAL7,
		"daemon": syslog.LOG_DAEMON, "user": syslog.LOG_USER,
	}
	p, ok := facilities[name]
	if !ok {
		return 0, fmt.Errorf("--syslog-facility %q: unknown facility", name)
	}
	return p, nil
}

func parseMQTTMode(s string) telemetry.Mode {
	switch s {
	case "full":
		return telemetry.Full
	case "events-only":
		return telemetry.EventsOnly
	default:
		return telemetry.Disabled
	}
}
