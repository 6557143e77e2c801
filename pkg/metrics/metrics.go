// Copyright 2025 UMH Systems GmbH
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

// Package metrics holds the Prometheus collectors of the core. Everything
// registers with the default registry, which the status server exposes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Values for the component label.
const (
	ComponentClientModule   = "client_module"
	ComponentService        = "service"
	ComponentConference     = "conference"
	ComponentSupercomponent = "supercomponent"
	ComponentStatusServer   = "status_server"
)

const (
	namespace = "hesperia"
	subsystem = "core"
)

// stateValues is the gauge encoding of service states. Unknown states are -1.
var stateValues = map[string]float64{
	"stopped":     0,
	"initialized": 1,
	"running":     2,
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

var (
	errorsTotal = counter("errors_total", "Errors by component and instance", "component", "instance")

	cycleDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  namespace,
		Subsystem:  subsystem,
		Name:       "cycle_duration_milliseconds",
		Help:       "Busy time of one module cycle in milliseconds",
		Objectives: map[float64]float64{0.5: 0.01, 0.9: 0.01, 0.99: 0.001},
		MaxAge:     time.Minute,
	}, []string{"component", "instance"})

	cycles     = gauge("cycles", "Cycles a module has completed", "instance")
	starvation = counter("cycle_starved_seconds_total", "Seconds modules spent without completing a cycle")
	states     = gauge("service_state", "Service state (0 stopped, 1 initialized, 2 running, -1 unknown)", "component", "instance")
	sent       = counter("containers_sent_total", "Containers handed to a conference", "instance", "datatype")
	received   = counter("containers_received_total", "Containers delivered by a conference", "instance", "datatype")
)

// IncErrorCountAndLog counts the error and, given a logger, logs it at debug.
func IncErrorCountAndLog(component, instance string, err error, log *zap.SugaredLogger) {
	IncErrorCount(component, instance)

	if log != nil {
		log.Debugw("error counted", "component", component, "instance", instance, "error", err)
	}
}

func IncErrorCount(component, instance string) {
	errorsTotal.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter exports a zero series so dashboards see the instance
// before its first error.
func InitErrorCounter(component, instance string) {
	errorsTotal.WithLabelValues(component, instance)
}

func ObserveCycleTime(component, instance string, d time.Duration) {
	cycleDuration.WithLabelValues(component, instance).Observe(float64(d) / float64(time.Millisecond))
}

func SetCycleCount(instance string, count uint64) {
	cycles.WithLabelValues(instance).Set(float64(count))
}

func AddStarvationTime(seconds float64) {
	starvation.WithLabelValues().Add(seconds)
}

func UpdateServiceState(component, instance, state string) {
	v, ok := stateValues[state]
	if !ok {
		v = -1
	}

	states.WithLabelValues(component, instance).Set(v)
}

func IncContainersSent(instance, dataType string) {
	sent.WithLabelValues(instance, dataType).Inc()
}

func IncContainersReceived(instance, dataType string) {
	received.WithLabelValues(instance, dataType).Inc()
}
