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

import "time"

// fakeRegisterClient backs NewFakePort: it always answers the configured
// value/status, and records the last value written to it.
type fakeRegisterClient struct {
	value  int
	status Status
	port   *Port
}

func (f *fakeRegisterClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if f.status != OK {
		return nil, statusError(f.status)
	}
	return []byte{byte(f.value >> 8), byte(f.value)}, nil
}

func (f *fakeRegisterClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if f.status != OK {
		return nil, statusError(f.status)
	}
	f.port.lastWritten = int(value)
	return nil, nil
}

func (f *fakeRegisterClient) Close() error { return nil }

// statusError is the error fakeRegisterClient returns for a configured
// failure. It is never a *goburrow.ModbusError, so classifyError maps every
// configured failure to CommunicationError, whatever status was configured.
type statusError Status

func (e statusError) Error() string { return Status(e).String() }

// NewFakePort builds a Port whose every transaction answers with value and
// status, for tests in other packages (reconcile, scheduler) that need a
// RegulationState-shaped collaborator without a live ECU.
func NewFakePort(value int, status Status) *Port {
	p := &Port{addr: "fake", unitID: 1, timeout: time.Second, register: PowerLimitRegister}
	fc := &fakeRegisterClient{value: value, status: status, port: p}
	p.dial = func(addr string, unitID byte, timeout time.Duration) (registerClient, error) {
		if status == ConnectionError {
			return nil, statusError(ConnectionError)
		}
		return fc, nil
	}
	return p
}

// LastWritten returns the most recent value accepted by WritePowerLimit, for
// test assertions.
func (p *Port) LastWritten() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWritten
}
