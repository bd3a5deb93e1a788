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

package modbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	goburrow "github.com/goburrow/modbus"
)

// DataType names the wire encoding of one inverter register, mirroring the
// handful of SunSpec-ish encodings APSystems DS3 micro-inverters use.
type DataType int

const (
	TypeString DataType = iota
	TypeUint16
	TypeUint32
	TypeInt16
	TypeFloat32
)

// RegisterSpec describes one readable inverter register for the inspection
// tools (modbus-dump, modbus-scan). The daemon never uses this table — it
// only ever touches PowerLimitRegister — but the ancillary tools reuse this
// package's transport to avoid a second Modbus client implementation.
type RegisterSpec struct {
	Name    string
	Address uint16
	Type    DataType
	Length  uint16 // register count (2 bytes each)
	Factor  float64
	Comment string
	Unit    string
}

// InverterRegisters is the register block read by modbus-dump and
// modbus-scan, grounded on the reference read_MO.py register table for
// APSystems DS3 micro-inverters behind the ECU.
func InverterRegisters() []RegisterSpec {
	return []RegisterSpec{
		{"manufacturer", 40004, TypeString, 16, 0, "Manufacturer", ""},
		{"model", 40020, TypeString, 16, 0, "Model", ""},
		{"version", 40044, TypeString, 8, 0, "Version", ""},
		{"serialnumber", 40052, TypeString, 16, 0, "Serial Number", ""},
		{"modbusid", 40068, TypeUint16, 1, 0, "Modbus ID", ""},
		{"type_inverter", 40070, TypeUint16, 1, 0, "Type Inverter", ""},
		{"current", 40072, TypeUint16, 1, 0.01, "Current", "A"},
		{"voltage", 40080, TypeUint16, 1, 0.1, "Voltage", "V"},
		{"power_ac", 40084, TypeUint16, 1, 0.1, "Power", "W"},
		{"frequency", 40086, TypeUint16, 1, 0.01, "Frequency", "Hz"},
		{"power_apparent", 40088, TypeUint16, 1, 0.1, "Power (Apparent)", "VA"},
		{"power_reactive", 40090, TypeUint16, 1, 0.1, "Power (Reactive)", "VAR"},
		{"power_factor", 40092, TypeUint16, 1, 0.001, "Power Factor", "cos phi"},
		{"energy_total", 40094, TypeUint32, 2, 0.001, "Total Energy", "kWh"},
		{"temperature", 40103, TypeInt16, 1, 0.1, "Temperature", "C"},
		{"status", 40108, TypeInt16, 1, 0, "Status", ""},
		{"connected", 40188, TypeUint16, 1, 0, "Is Connected", ""},
		{"power_max_lim", 40189, TypeUint16, 1, 0.1, "Power Max", "%"},
		{"power_max_lim_ena", 40193, TypeUint16, 1, 0, "Power Max Ena", ""},
		{"dc1_voltage", 40214, TypeFloat32, 2, 0, "DC1 Voltage", "V"},
		{"dc2_voltage", 40216, TypeFloat32, 2, 0, "DC2 Voltage", "V"},
		{"dc1_current", 40230, TypeFloat32, 2, 0, "DC1 Current", "A"},
		{"dc2_current", 40232, TypeFloat32, 2, 0, "DC2 Current", "A"},
		{"dc1_power", 40246, TypeFloat32, 2, 0, "DC1 Power", "W"},
		{"dc2_power", 40248, TypeFloat32, 2, 0, "DC2 Power", "W"},
	}
}

// Decode interprets raw register bytes according to spec, applying Factor to
// numeric types. String registers are trimmed of trailing NUL padding.
func Decode(raw []byte, spec RegisterSpec) (interface{}, error) {
	switch spec.Type {
	case TypeString:
		return string(bytes.TrimRight(raw, "\x00")), nil
	case TypeUint16:
		if len(raw) < 2 {
			return nil, fmt.Errorf("%s: short read", spec.Name)
		}
		v := float64(binary.BigEndian.Uint16(raw))
		return applyFactor(v, spec.Factor), nil
	case TypeInt16:
		if len(raw) < 2 {
			return nil, fmt.Errorf("%s: short read", spec.Name)
		}
		v := float64(int16(binary.BigEndian.Uint16(raw)))
		return applyFactor(v, spec.Factor), nil
	case TypeUint32:
		if len(raw) < 4 {
			return nil, fmt.Errorf("%s: short read", spec.Name)
		}
		v := float64(binary.BigEndian.Uint32(raw))
		return applyFactor(v, spec.Factor), nil
	case TypeFloat32:
		if len(raw) < 4 {
			return nil, fmt.Errorf("%s: short read", spec.Name)
		}
		bits := binary.BigEndian.Uint32(raw)
		return float64(math.Float32frombits(bits)), nil
	default:
		return nil, fmt.Errorf("%s: unknown data type", spec.Name)
	}
}

func applyFactor(v, factor float64) float64 {
	if factor == 0 {
		return v
	}
	return v * factor
}

// InspectClient is a long-lived Modbus/TCP client for the one-shot
// inspection tools, where a single CLI invocation legitimately reads many
// registers back to back. It reconnects automatically after an error,
// mirroring the reference read_MO.py tool's retry loop.
type InspectClient struct {
	addr    string
	unitID  byte
	timeout time.Duration

	handler *goburrow.TCPClientHandler
	client  goburrow.Client
}

// DialInspect opens a persistent connection for a run of register reads.
func DialInspect(host string, port int, unitID byte) (*InspectClient, error) {
	c := &InspectClient{
		addr:    fmt.Sprintf("%s:%d", host, port),
		unitID:  unitID,
		timeout: 5 * time.Second,
	}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *InspectClient) reconnect() error {
	if c.handler != nil {
		c.handler.Close()
	}
	handler := goburrow.NewTCPClientHandler(c.addr)
	handler.Timeout = c.timeout
	handler.SlaveId = c.unitID
	if err := handler.Connect(); err != nil {
		return err
	}
	c.handler = handler
	c.client = goburrow.NewClient(handler)
	return nil
}

// ReadRegister reads and decodes one RegisterSpec, reconnecting once and
// retrying on any error before giving up.
func (c *InspectClient) ReadRegister(spec RegisterSpec) (interface{}, error) {
	raw, err := c.client.ReadHoldingRegisters(spec.Address, spec.Length)
	if err != nil {
		if rerr := c.reconnect(); rerr != nil {
			return nil, fmt.Errorf("%s: read failed (%v), reconnect failed: %w", spec.Name, err, rerr)
		}
		raw, err = c.client.ReadHoldingRegisters(spec.Address, spec.Length)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
	}
	return Decode(raw, spec)
}

// WriteRegister writes one UINT16 value to address, reconnecting once and
// retrying on error before giving up — the same retry shape as ReadRegister.
func (c *InspectClient) WriteRegister(address uint16, value uint16) error {
	_, err := c.client.WriteSingleRegister(address, value)
	if err != nil {
		if rerr := c.reconnect(); rerr != nil {
			return fmt.Errorf("write failed (%v), reconnect failed: %w", err, rerr)
		}
		_, err = c.client.WriteSingleRegister(address, value)
	}
	return err
}

// SetUnit switches the slave/unit ID used by subsequent ReadRegister calls,
// without tearing down the underlying TCP connection — the ECU accepts a
// different unit ID per request on the same socket, matching the reference
// tool's practice of scanning several inverters through one connection.
func (c *InspectClient) SetUnit(unitID byte) {
	c.unitID = unitID
	if c.handler != nil {
		c.handler.SlaveId = unitID
	}
}

// Close releases the underlying TCP connection.
func (c *InspectClient) Close() error {
	if c.handler == nil {
		return nil
	}
	return c.handler.Close()
}
