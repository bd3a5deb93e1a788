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

// Package telemetry fans regulation events and run-samples out to MQTT.
// Publishing is always best-effort: a disconnected broker, a publish
// timeout or a malformed payload must never add backpressure to the
// regulation loop, so every failure here is logged and swallowed.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vmath54/solarreg/internal/regulator/events"
)

// Mode selects which subtopics Publisher actually sends.
type Mode int

const (
	// Disabled drops every publish silently; used when no broker is configured.
	Disabled Mode = iota
	// Full publishes both …/run and …/evt.
	Full
	// EventsOnly publishes …/evt but skips the higher-volume …/run samples.
	EventsOnly
)

// RunSample is the wire shape of the …/run subtopic.
type RunSample struct {
	Solar       int     `json:"solar"`
	Injection   int     `json:"injection"`
	PowerLimit  float64 `json:"power_limit"`
	DelaySecond int     `json:"delay"`
}

// Config configures a Publisher.
type Config struct {
	Broker    string // e.g. "tcp://127.0.0.1:1883"
	ClientID  string
	Username  string
	Password  string
	RootTopic string // default "solar_power_regulator"
	Mode      Mode
}

// Publisher fans out run-samples and events to MQTT. It is safe for
// concurrent use; all state mutation (the dedup cache, the connected flag)
// is guarded by mu.
type Publisher struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	client      mqtt.Client
	connected   bool
	lastRunJSON string
}

// New builds a Publisher. The MQTT connection is established lazily on the
// first publish, not here — a daemon that can't reach its broker yet must
// still start regulating.
func New(cfg Config, log *slog.Logger) *Publisher {
	if cfg.RootTopic == "" {
		cfg.RootTopic = "solar_power_regulator"
	}
	return &Publisher{cfg: cfg, log: log}
}

// PublishRun sends a run-sample iff its JSON serialisation differs from the
// last one published, per the telemetry deduplication rule.
func (p *Publisher) PublishRun(sample RunSample) {
	if p.cfg.Mode != Full {
		return
	}
	body, err := json.Marshal(sample)
	if err != nil {
		p.log.Warn("telemetry: marshal run sample failed", "err", err)
		return
	}
	payload := string(body)

	p.mu.Lock()
	if payload == p.lastRunJSON {
		p.mu.Unlock()
		return
	}
	p.lastRunJSON = payload
	p.mu.Unlock()

	p.publish(p.cfg.RootTopic+"/run", body)
}

// Event always publishes, regardless of dedup state — only …/run is rate
// limited by payload equality.
func (p *Publisher) Event(ev events.Event) {
	if p.cfg.Mode == Disabled {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("telemetry: marshal event failed", "err", err)
		return
	}
	p.publish(p.cfg.RootTopic+"/evt", body)
}

// lastPayload returns the last serialised run-sample, used only for test
// assertions of the dedup rule.
func (p *Publisher) lastPayload() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRunJSON
}

func (p *Publisher) publish(topic string, body []byte) {
	client, ok := p.ensureConnected()
	if !ok {
		return
	}
	token := client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(5 * time.Second) {
		p.log.Warn("telemetry: publish timed out", "topic", topic)
		p.markDisconnected()
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn("telemetry: publish failed", "topic", topic, "err", err)
		p.markDisconnected()
	}
}

// ensureConnected lazily connects the client on first use and reconnects
// after a prior disconnect callback fired. It never blocks the caller for
// more than the connect timeout.
func (p *Publisher) ensureConnected() (mqtt.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.connected {
		return p.client, true
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetConnectionLostHandler(func(mqtt.Client, error) {
			p.markDisconnected()
		})
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) || token.Error() != nil {
		p.log.Warn("telemetry: connect failed", "broker", p.cfg.Broker, "err", token.Error())
		return nil, false
	}

	p.client = client
	p.connected = true
	return client, true
}

func (p *Publisher) markDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

// Disconnect closes the MQTT connection. Called last during shutdown, after
// the HTTP server and background workers have stopped.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.connected = false
	p.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

// RunSampleFromDecision builds the …/run payload for one decision, rendering
// the permille limit as a percentage for the wire.
func RunSampleFromDecision(solarW, injectionW, limitPermille, delayS int) RunSample {
	return RunSample{
		Solar:       solarW,
		Injection:   injectionW,
		PowerLimit:  float64(limitPermille) / 10.0,
		DelaySecond: delayS,
	}
}
