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

// Command modbus-scan reads the same register block as modbus-dump for each
// of a list of Modbus unit IDs behind a single ECU, and totals AC/DC power
// and cumulative energy across the fleet.
//
//	modbus-scan [-p port] [-u 1,11,12] <ecu_ip>
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vmath54/solarreg/internal/regulator/modbus"
)

// scanRegisters is the subset of modbus.InverterRegisters() this tool
// reports per unit, mirroring the reference read_all_MO.py's trimmed table.
func scanRegisters() []modbus.RegisterSpec {
	var keep = map[string]bool{
		"power_ac": true, "energy_total": true, "temperature": true,
		"status": true, "connected": true, "power_max_lim": true,
		"power_max_lim_ena": true, "dc1_power": true, "dc2_power": true,
	}
	var out []modbus.RegisterSpec
	for _, spec := range modbus.InverterRegisters() {
		if keep[spec.Name] {
			out = append(out, spec)
		}
	}
	return out
}

func main() {
	port := flag.Int("p", 502, "Modbus TCP port")
	units := flag.String("u", "1,11,12", "comma-separated list of Modbus device addresses")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: modbus-scan [-p port] [-u 1,11,12] <ecu_ip>")
		os.Exit(1)
	}
	host := flag.Arg(0)

	var ids []int
	for _, tok := range strings.Split(*units, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad unit id %q: %v\n", tok, err)
			os.Exit(1)
		}
		ids = append(ids, id)
	}

	fmt.Printf("liste des équipements scannés sur %s : %v\n\n", host, ids)

	registers := scanRegisters()
	var totalAC, totalDC1, totalDC2, totalEnergy float64

	client, err := modbus.DialInspect(host, *port, byte(ids[0]))
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer client.Close()

	for _, id := range ids {
		client.SetUnit(byte(id))
		fmt.Printf("device %d:\n", id)
		for _, spec := range registers {
			value, err := client.ReadRegister(spec)
			if err != nil {
				fmt.Printf("  %s: error: %v\n", spec.Comment, err)
				continue
			}
			fmt.Printf("  %-20s = %v %s\n", spec.Comment, value, spec.Unit)
			switch spec.Name {
			case "power_ac":
				totalAC += toFloat(value)
			case "dc1_power":
				totalDC1 += toFloat(value)
			case "dc2_power":
				totalDC2 += toFloat(value)
			case "energy_total":
				totalEnergy += toFloat(value)
			}
		}
	}

	fmt.Println()
	fmt.Printf("Total AC Power : %.0f W\n", totalAC)
	fmt.Printf("Total DC Power : %.0f W\n", totalDC1+totalDC2)
	fmt.Printf("Total Energy   : %.3f kWh\n", totalEnergy)
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
