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

// Package config parses the daemon's command line into a Config. It uses
// only the standard flag package: the surface is a handful of scalars, not a
// subcommand tree, so a third-party CLI framework would add a dependency
// without adding capability.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vmath54/solarreg/internal/regulator/control"
)

// Config is everything the Supervisor needs to wire the daemon, parsed once
// from os.Args at startup.
type Config struct {
	ECUHost     string
	ModbusPort  int
	ModbusSlave int

	HTTPHost string
	HTTPPort int

	NoDaemon bool

	LogLevel       slog.Level
	LogFile        string
	SyslogFacility string

	MetricsAddr string
	Windows     []control.Window

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTMode     string
	MQTTTopic    string
}

// windowList accumulates repeated --window flags.
type windowList []string

func (w *windowList) String() string { return fmt.Sprint([]string(*w)) }
func (w *windowList) Set(v string) error {
	*w = append(*w, v)
	return nil
}

// Parse parses args (typically os.Args[1:]) into a Config. Flags come first;
// the first positional argument after them must be the ECU's IP address or
// hostname, matching the daemon's positional contract.
func Parse(args []string) (Config, error) {
	// Load .env into the process environment, if present, so broker
	// credentials don't need to appear on the command line or in a process
	// list. A missing file is not an error; a malformed one is.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	fs := flag.NewFlagSet("solarreg", flag.ContinueOnError)

	modbusPort := fs.Int("modbus-port", 502, "ECU Modbus/TCP port")
	modbusSlave := fs.Int("modbus-slave", 1, "Modbus slave/unit ID routed to the ECU")
	httpHost := fs.String("http-host", "0.0.0.0", "HTTP Intake listen host")
	httpPort := fs.Int("http-port", 8080, "HTTP Intake listen port")
	noDaemon := fs.Bool("no-daemon", false, "foreground run: colourised stdout logs (the process never detaches; without this flag stdout logs are plain text)")
	loglevel := fs.String("loglevel", "info", "debug, info, warn or err")
	logfile := fs.String("logfile", "", "write logs to this file instead of stdout")
	syslogFacility := fs.String("syslog-facility", "", "write logs to syslog under this facility (e.g. local0)")
	metricsAddr := fs.String("metrics-addr", "", "if set, expose Prometheus metrics on this address")

	mqttBroker := fs.String("mqtt-broker", os.Getenv("SOLARREG_MQTT_BROKER"), "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables telemetry)")
	mqttClientID := fs.String("mqtt-client-id", "solarreg", "MQTT client ID")
	mqttUsername := fs.String("mqtt-username", os.Getenv("SOLARREG_MQTT_USERNAME"), "MQTT username")
	mqttPassword := fs.String("mqtt-password", os.Getenv("SOLARREG_MQTT_PASSWORD"), "MQTT password")
	mqttMode := fs.String("mqtt-mode", "full", "full, events-only or disabled")
	mqttTopic := fs.String("mqtt-topic", "solar_power_regulator", "telemetry root topic")

	var windows windowList
	fs.Var(&windows, "window", "regulation window HH:MM-HH:MM, repeatable; none means always regulating")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *logfile != "" && *syslogFacility != "" {
		return Config{}, errors.New("--logfile and --syslog-facility are mutually exclusive")
	}

	if fs.NArg() < 1 {
		return Config{}, errors.New("missing required positional argument: ecu_ip")
	}

	level, err := parseLevel(*loglevel)
	if err != nil {
		return Config{}, err
	}

	parsedWindows := make([]control.Window, 0, len(windows))
	for _, spec := range windows {
		w, err := control.ParseWindow(spec)
		if err != nil {
			return Config{}, err
		}
		parsedWindows = append(parsedWindows, w)
	}

	return Config{
		ECUHost:        fs.Arg(0),
		ModbusPort:     *modbusPort,
		ModbusSlave:    *modbusSlave,
		HTTPHost:       *httpHost,
		HTTPPort:       *httpPort,
		NoDaemon:       *noDaemon,
		LogLevel:       level,
		LogFile:        *logfile,
		SyslogFacility: *syslogFacility,
		MetricsAddr:    *metricsAddr,
		Windows:        parsedWindows,
		MQTTBroker:     *mqttBroker,
		MQTTClientID:   *mqttClientID,
		MQTTUsername:   *mqttUsername,
		MQTTPassword:   *mqttPassword,
		MQTTMode:       *mqttMode,
		MQTTTopic:      *mqttTopic,
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "err", "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("--loglevel %q: want debug, info, warn or err", s)
	}
}
