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

package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a wall-clock regulation window, expressed as minutes since
// midnight. End may be less than Start, in which case the window wraps past
// midnight (e.g. 22:00-06:00).
type Window struct {
	StartMin int
	EndMin   int
}

// ParseWindow parses a "HH:MM-HH:MM" spec into a Window.
func ParseWindow(spec string) (Window, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("window %q: want HH:MM-HH:MM", spec)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("window %q: start: %w", spec, err)
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("window %q: end: %w", spec, err)
	}
	return Window{StartMin: start, EndMin: end}, nil
}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q: bad minute", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t's time-of-day falls inside the window,
// correctly handling midnight wraparound.
func (w Window) Contains(t time.Time) bool {
	min := t.Hour()*60 + t.Minute()
	if w.StartMin <= w.EndMin {
		return min >= w.StartMin && min < w.EndMin
	}
	return min >= w.StartMin || min < w.EndMin
}

// InAnyWindow reports whether t falls inside any of windows. An empty
// windows list means "always in window" — the regulator runs around the
// clock when no window is configured.
func InAnyWindow(windows []Window, t time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}
