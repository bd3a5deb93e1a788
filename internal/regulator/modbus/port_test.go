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
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/vmath54/solarreg/pkg/permille"
)

type fakeClient struct {
	readErr  error
	writeErr error
	value    uint16
	closed   bool
	written  uint16
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, f.value)
	return buf, nil
}

func (f *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.written = value
	return nil, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestPort(fc *fakeClient, dialErr error) *Port {
	p := &Port{
		addr:     "test:502",
		unitID:   1,
		timeout:  time.Second,
		register: PowerLimitRegister,
	}
	p.dial = func(addr string, unitID byte, timeout time.Duration) (registerClient, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return fc, nil
	}
	return p
}

func TestReadPowerLimitOK(t *testing.T) {
	fc := &fakeClient{value: 450}
	p := newTestPort(fc, nil)
	v, status := p.ReadPowerLimit()
	if status != OK {
		t.Fatalf("status = %v, want OK", status)
	}
	if v != 450 {
		t.Fatalf("value = %d, want 450", v)
	}
	if !fc.closed {
		t.Fatal("expected connection to be closed after the transaction")
	}
}

func TestReadPowerLimitConnectionError(t *testing.T) {
	p := newTestPort(&fakeClient{}, errors.New("dial refused"))
	_, status := p.ReadPowerLimit()
	if status != ConnectionError {
		t.Fatalf("status = %v, want ConnectionError", status)
	}
}

func TestReadPowerLimitCommunicationError(t *testing.T) {
	fc := &fakeClient{readErr: errors.New("i/o timeout")}
	p := newTestPort(fc, nil)
	_, status := p.ReadPowerLimit()
	if status != CommunicationError {
		t.Fatalf("status = %v, want CommunicationError", status)
	}
}

func TestWritePowerLimitClampsAndDodgesBuggy(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPort(fc, nil)

	if status := p.WritePowerLimit(5); status != OK {
		t.Fatalf("status = %v, want OK", status)
	}
	if fc.written != permille.Min {
		t.Fatalf("written = %d, want clamped to %d", fc.written, permille.Min)
	}

	if status := p.WritePowerLimit(permille.Buggy); status != OK {
		t.Fatalf("status = %v, want OK", status)
	}
	if fc.written == permille.Buggy {
		t.Fatalf("wrote the buggy limit verbatim: %d", fc.written)
	}
}

func TestWritePowerLimitOverMaxClamps(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPort(fc, nil)
	if status := p.WritePowerLimit(5000); status != OK {
		t.Fatalf("status = %v, want OK", status)
	}
	if fc.written != permille.Max {
		t.Fatalf("written = %d, want clamped to %d", fc.written, permille.Max)
	}
}
