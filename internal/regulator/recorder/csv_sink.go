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

// Package recorder appends telemetry messages to CSV files for offline
// analysis — the delegated "store history" role spec.md explicitly pushes
// out of the daemon and onto a collaborator.
package recorder

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/vmath54/solarreg/internal/regulator/events"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
)

// CSVSink appends rows to a single CSV file, flushing after every row so a
// `tail -f` on the file (or a crash mid-run) never loses a buffered record.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVSink opens path for append, writing header if the file is new.
func NewCSVSink(path string, header []string) (*CSVSink, error) {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write(append([]string{"timestamp"}, header...)); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
	}
	return &CSVSink{f: f, w: w}, nil
}

func (s *CSVSink) writeRow(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := append([]string{time.Now().UTC().Format(time.RFC3339Nano)}, fields...)
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

// RunHeader is the CSV header for a run-sample sink.
var RunHeader = []string{"solar", "injection", "power_limit", "delay"}

// EventHeader is the CSV header for an event sink.
var EventHeader = []string{"code", "name", "msg"}

// AppendRun writes one …/run sample as a CSV row.
func (s *CSVSink) AppendRun(sample telemetry.RunSample) error {
	return s.writeRow([]string{
		strconv.Itoa(sample.Solar),
		strconv.Itoa(sample.Injection),
		strconv.FormatFloat(sample.PowerLimit, 'f', 1, 64),
		strconv.Itoa(sample.DelaySecond),
	})
}

// AppendEvent writes one …/evt message as a CSV row.
func (s *CSVSink) AppendEvent(ev events.Event) error {
	return s.writeRow([]string{
		strconv.Itoa(int(ev.Code)),
		ev.Code.String(),
		ev.Msg,
	})
}
