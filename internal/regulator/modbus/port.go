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

// Package modbus wraps Modbus/TCP access to a single holding register — the
// ECU's global power-limit register — into a serialised, reconnect-per-
// transaction Port. The ECU is known to drop idle connections and to choke
// on interleaved transactions, so Port never pools a connection and never
// lets two transactions run concurrently.
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	goburrow "github.com/goburrow/modbus"

	"github.com/vmath54/solarreg/internal/regulator/metrics"
	"github.com/vmath54/solarreg/pkg/permille"
)

// PowerLimitRegister is the ECU's global power-limit holding register.
// Addressed directly (not offset by the classic 40001 Modbus convention) —
// the ECU expects the raw register number, matching the addressing used by
// the reference Python tooling this port is modelled on.
const PowerLimitRegister uint16 = 40189

// Status is the outcome of one Modbus transaction.
type Status int

const (
	OK Status = iota
	ConnectionError
	ExecutionError
	CommunicationError
	RecurrentFailure
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case ConnectionError:
		return "CONNECTION_ERROR"
	case ExecutionError:
		return "MODBUS_EXECUTION_ERROR"
	case CommunicationError:
		return "COMMUNICATION_ERROR"
	case RecurrentFailure:
		return "RECURRENT_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// registerClient is the minimal transaction-scoped surface Port needs from a
// Modbus client. Splitting it out lets tests substitute a fake without
// spinning up a TCP listener, the same way the teacher's persistence package
// swaps a logging client in for a real one.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	Close() error
}

// dialFunc opens one fresh, transaction-scoped connection.
type dialFunc func(addr string, unitID byte, timeout time.Duration) (registerClient, error)

// Port serialises Modbus/TCP transactions against one ECU register.
type Port struct {
	mu sync.Mutex

	addr     string // "host:port"
	unitID   byte
	timeout  time.Duration
	register uint16
	dial     dialFunc

	lastWritten int // test-only bookkeeping, see fake.go
}

// NewPort builds a Port targeting host:port with the given slave/unit ID,
// using a real TCP client dialed fresh per transaction.
func NewPort(host string, port int, unitID byte) *Port {
	return &Port{
		addr:     fmt.Sprintf("%s:%d", host, port),
		unitID:   unitID,
		timeout:  5 * time.Second,
		register: PowerLimitRegister,
		dial:     dialGoburrow,
	}
}

// ReadPowerLimit performs one read-holding-registers transaction against the
// power-limit register. A fresh connection is opened and closed for this
// call alone.
func (p *Port) ReadPowerLimit() (int, Status) {
	start := time.Now()
	defer func() { metrics.ObserveModbus("read", time.Since(start)) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := p.dial(p.addr, p.unitID, p.timeout)
	if err != nil {
		return 0, ConnectionError
	}
	defer client.Close()

	raw, err := client.ReadHoldingRegisters(p.register, 1)
	if err != nil {
		return 0, classifyError(err)
	}
	if len(raw) < 2 {
		return 0, CommunicationError
	}
	return int(binary.BigEndian.Uint16(raw)), OK
}

// WritePowerLimit performs one write-single-register transaction. The value
// is clamped to [permille.Min, permille.Max] and nudged off permille.Buggy
// before it ever reaches the wire — the ECU must never be asked to hold the
// one value it spontaneously (and spuriously) regresses to.
func (p *Port) WritePowerLimit(value int) Status {
	start := time.Now()
	defer func() { metrics.ObserveModbus("write", time.Since(start)) }()

	value = permille.Clamp(value)
	if value == permille.Buggy {
		value++
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := p.dial(p.addr, p.unitID, p.timeout)
	if err != nil {
		return ConnectionError
	}
	defer client.Close()

	if _, err := client.WriteSingleRegister(p.register, uint16(value)); err != nil {
		return classifyError(err)
	}
	return OK
}

// classifyError maps a client error into the Status vocabulary. A
// *goburrow.ModbusError means the ECU answered with an exception response
// (a valid transaction, rejected); anything else reaching this point after a
// successful dial is a communication-level failure (timeout, short read,
// connection reset mid-transaction).
func classifyError(err error) Status {
	var modbusErr *goburrow.ModbusError
	if errors.As(err, &modbusErr) {
		return ExecutionError
	}
	return CommunicationError
}

// dialGoburrow opens one Modbus/TCP handler and client, wrapping
// github.com/goburrow/modbus.
func dialGoburrow(addr string, unitID byte, timeout time.Duration) (registerClient, error) {
	handler := goburrow.NewTCPClientHandler(addr)
	handler.Timeout = timeout
	handler.SlaveId = unitID
	if err := handler.Connect(); err != nil {
		return nil, err
	}
	return &goburrowClient{handler: handler, client: goburrow.NewClient(handler)}, nil
}

type goburrowClient struct {
	handler *goburrow.TCPClientHandler
	client  goburrow.Client
}

func (g *goburrowClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return g.client.ReadHoldingRegisters(address, quantity)
}

func (g *goburrowClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return g.client.WriteSingleRegister(address, value)
}

func (g *goburrowClient) Close() error { return g.handler.Close() }
