/*
 * Copyright 2025 The DriftSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prometheus provides the prometheus metrics of the server.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/driftsync/driftsync/internal/version"
)

const (
	namespace = "driftsync"
)

// Metrics manages the metric information that the server collects.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion *prometheus.GaugeVec

	pushedOperationsTotal    prometheus.Counter
	duplicateOperationsTotal prometheus.Counter
	replayedOperationsTotal  prometheus.Counter
	broadcastsTotal          *prometheus.CounterVec
	awarenessUpdatesTotal    *prometheus.CounterVec
	watchedConnections       prometheus.Gauge
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	metrics := &Metrics{
		registry: reg,
		serverVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Version information of the server.",
		}, []string{"server_version"}),
		pushedOperationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pushed_operations_total",
			Help:      "The total count of operations appended to document logs.",
		}),
		duplicateOperationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duplicate_operations_total",
			Help:      "The total count of re-delivered operations absorbed as duplicates.",
		}),
		replayedOperationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "replayed_operations_total",
			Help:      "The total count of operations replayed from offline queues.",
		}),
		broadcastsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "broadcasts_total",
			Help:      "The total count of events fanned out to workspaces.",
		}, []string{"event_type"}),
		awarenessUpdatesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "awareness_updates_total",
			Help:      "The total count of presence, typing and cursor updates.",
		}, []string{"kind"}),
		watchedConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "watched_connections",
			Help:      "The number of connections watching workspaces.",
		}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// AddPushedOperations adds the given count of appended operations.
func (m *Metrics) AddPushedOperations(count int) {
	m.pushedOperationsTotal.Add(float64(count))
}

// AddDuplicateOperations adds the given count of absorbed duplicates.
func (m *Metrics) AddDuplicateOperations(count int) {
	m.duplicateOperationsTotal.Add(float64(count))
}

// AddReplayedOperations adds the given count of offline replays.
func (m *Metrics) AddReplayedOperations(count int) {
	m.replayedOperationsTotal.Add(float64(count))
}

// AddBroadcast counts one fanned-out event of the given type.
func (m *Metrics) AddBroadcast(eventType string) {
	m.broadcastsTotal.With(prometheus.Labels{"event_type": eventType}).Inc()
}

// AddAwarenessUpdate counts one awareness update of the given kind.
func (m *Metrics) AddAwarenessUpdate(kind string) {
	m.awarenessUpdatesTotal.With(prometheus.Labels{"kind": kind}).Inc()
}

// AddWatchedConnections adds one watching connection.
func (m *Metrics) AddWatchedConnections() {
	m.watchedConnections.Inc()
}

// RemoveWatchedConnections removes one watching connection.
func (m *Metrics) RemoveWatchedConnections() {
	m.watchedConnections.Dec()
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
