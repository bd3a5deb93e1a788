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

// Command solarreg is the grid-injection regulator daemon. It watches
// injection power reported by a grid meter over HTTP, computes a new
// ECU power-limit setpoint with a four-tier control algorithm, and writes it
// back over Modbus/TCP, publishing telemetry to MQTT along the way.
//
//	solarreg [flags] <ecu_ip>
package main

import (
	"fmt"
	"os"

	"github.com/vmath54/solarreg/internal/regulator/config"
	"github.com/vmath54/solarreg/internal/regulator/supervisor"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "solarreg:", err)
		os.Exit(1)
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "solarreg:", err)
		os.Exit(1)
	}

	if err := sup.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "solarreg:", err)
		os.Exit(1)
	}
}
