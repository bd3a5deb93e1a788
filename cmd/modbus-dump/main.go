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

// Command modbus-dump reads and prints the full register block of one
// APSystems micro-inverter behind an ECU.
//
//	modbus-dump [-p port] [-u unit] <ecu_ip>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vmath54/solarreg/internal/regulator/modbus"
)

func main() {
	port := flag.Int("p", 502, "Modbus TCP port")
	unit := flag.Int("u", 1, "Modbus device address")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: modbus-dump [-p port] [-u unit] <ecu_ip>")
		os.Exit(1)
	}
	host := flag.Arg(0)

	fmt.Printf("Interrogation modbus de %s pour le device %d\n", host, *unit)
	fmt.Println(sep)

	client, err := modbus.DialInspect(host, *port, byte(*unit))
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer client.Close()

	for _, spec := range modbus.InverterRegisters() {
		value, err := client.ReadRegister(spec)
		if err != nil {
			fmt.Printf("%s: error: %v\n", spec.Comment, err)
			continue
		}
		fmt.Printf("%s = %v %s\n", spec.Comment, value, spec.Unit)
	}
}

const sep = "--------------------------------------------------"
