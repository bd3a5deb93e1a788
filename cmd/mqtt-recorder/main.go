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

// Command mqtt-recorder subscribes to a regulator's …/run and …/evt
// subtopics and appends every message to its own CSV file for offline
// analysis, mirroring solar_read_mqtt.py's two-file recording convention.
//
//	mqtt-recorder -broker tcp://localhost:1883 -topic solar_power_regulator
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vmath54/solarreg/internal/regulator/events"
	"github.com/vmath54/solarreg/internal/regulator/recorder"
	"github.com/vmath54/solarreg/internal/regulator/telemetry"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := flag.String("topic", "solar_power_regulator", "telemetry root topic to subscribe under")
	runCSV := flag.String("run-csv", "solar_power_regulator_run.csv", "output CSV for the run subtopic")
	evtCSV := flag.String("evt-csv", "solar_power_regulator_evt.csv", "output CSV for the evt subtopic")
	clientID := flag.String("client-id", "mqtt-recorder", "MQTT client ID")
	flag.Parse()

	runSink, err := recorder.NewCSVSink(*runCSV, recorder.RunHeader)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mqtt-recorder:", err)
		os.Exit(1)
	}
	defer runSink.Close()

	evtSink, err := recorder.NewCSVSink(*evtCSV, recorder.EventHeader)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mqtt-recorder:", err)
		os.Exit(1)
	}
	defer evtSink.Close()

	opts := mqtt.NewClientOptions().AddBroker(*broker).SetClientID(*clientID).SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Fprintln(os.Stderr, "mqtt-recorder: connect:", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	client.Subscribe(*topic+"/run", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var sample telemetry.RunSample
		if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
			fmt.Fprintln(os.Stderr, "mqtt-recorder: bad run payload:", err)
			return
		}
		if err := runSink.AppendRun(sample); err != nil {
			fmt.Fprintln(os.Stderr, "mqtt-recorder: write run row:", err)
		}
	})

	client.Subscribe(*topic+"/evt", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev events.Event
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			fmt.Fprintln(os.Stderr, "mqtt-recorder: bad evt payload:", err)
			return
		}
		if err := evtSink.AppendEvent(ev); err != nil {
			fmt.Fprintln(os.Stderr, "mqtt-recorder: write evt row:", err)
		}
	})

	fmt.Printf("recording %s/{run,evt} from %s\n", *topic, *broker)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}
