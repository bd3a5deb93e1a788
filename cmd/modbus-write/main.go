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

// Command modbus-write writes one raw value to one of the three registers
// the ECU exposes as installation-wide controls: connected, power_limit, or
// power_limit_ena. A write to any of the three applies to the whole
// installation — the unit ID is a routing hint only. A power_limit value is
// a percentage, written in permille after the daemon's [Min, Max] clamp and
// Buggy dodge.
//
//	modbus-write -r power_limit -v 25 <ecu_ip>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vmath54/solarreg/internal/regulator/modbus"
	"github.com/vmath54/solarreg/pkg/permille"
)

// writableRegisters mirrors write_MO.py's three installation-wide controls.
var writableRegisters = map[string]uint16{
	"connected":       40188,
	"power_limit":     40189,
	"power_limit_ena": 40193,
}

func main() {
	port := flag.Int("p", 502, "Modbus TCP port")
	unit := flag.Int("u", 1, "Modbus device address")
	register := flag.String("r", "", "register to write: connected, power_limit or power_limit_ena")
	value := flag.Int("v", 0, "value to write: 0/1 for connected or power_limit_ena, 0-100 for power_limit")
	flag.Parse()

	if flag.NArg() < 1 || *register == "" {
		fmt.Fprintln(os.Stderr, "usage: modbus-write -r register -v value <ecu_ip>")
		os.Exit(1)
	}
	host := flag.Arg(0)

	address, ok := writableRegisters[*register]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown register %q\n", *register)
		os.Exit(1)
	}

	wireValue := *value
	switch *register {
	case "connected", "power_limit_ena":
		if *value != 0 && *value != 1 {
			fmt.Fprintf(os.Stderr, "register %q only accepts 0 or 1\n", *register)
			os.Exit(1)
		}
	case "power_limit":
		if *value < 0 || *value > 100 {
			fmt.Fprintln(os.Stderr, "register power_limit only accepts 0..100")
			os.Exit(1)
		}
		wireValue *= 10 // 0..100 percent -> permille, matching the ECU's register scale
		wireValue = permille.DodgeBuggy(permille.Clamp(wireValue), true)
	}

	client, err := modbus.DialInspect(host, *port, byte(*unit))
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("device %d, write register %q: addr %d, value %d\n", *unit, *register, address, wireValue)
	if err := client.WriteRegister(address, uint16(wireValue)); err != nil {
		fmt.Fprintln(os.Stderr, "write failed:", err)
		os.Exit(1)
	}
}
