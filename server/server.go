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

// Package server provides the DriftSync server which synchronizes documents
// across clients and tracks their presence.
package server

import (
	gosync "sync"

	"github.com/driftsync/driftsync/server/backend"
	"github.com/driftsync/driftsync/server/gateway"
	"github.com/driftsync/driftsync/server/profiling"
	"github.com/driftsync/driftsync/server/profiling/prometheus"
	"github.com/driftsync/driftsync/server/sync"
)

// DriftSync is a server of DriftSync. It bundles the backend, the sync
// coordinator and the outward-facing servers.
type DriftSync struct {
	conf            *Config
	backend         *backend.Backend
	coordinator     *sync.Coordinator
	gatewayServer   *gateway.Server
	profilingServer *profiling.Server

	shutdown   bool
	shutdownCh chan struct{}
	mu         gosync.Mutex
}

// New creates a new instance of DriftSync.
func New(conf *Config) (*DriftSync, error) {
	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(conf.Backend, conf.Mongo, conf.Redis, metrics)
	if err != nil {
		return nil, err
	}

	coordinator := sync.NewCoordinator(be)
	gatewayServer := gateway.NewServer(conf.Gateway, be, coordinator)
	profilingServer := profiling.NewServer(conf.Profiling, metrics)

	return &DriftSync{
		conf:            conf,
		backend:         be,
		coordinator:     coordinator,
		gatewayServer:   gatewayServer,
		profilingServer: profilingServer,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// Start starts the server by opening the gateway and profiling ports.
func (r *DriftSync) Start() error {
	if err := r.profilingServer.Start(); err != nil {
		return err
	}
	return r.gatewayServer.Start()
}

// Shutdown shuts down this DriftSync server.
func (r *DriftSync) Shutdown(graceful bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil
	}

	r.gatewayServer.Shutdown(graceful)
	r.profilingServer.Shutdown(graceful)

	if err := r.backend.Shutdown(); err != nil {
		return err
	}

	r.shutdown = true
	close(r.shutdownCh)

	return nil
}

// ShutdownCh returns the shutdown channel.
func (r *DriftSync) ShutdownCh() <-chan struct{} {
	return r.shutdownCh
}

// Backend returns the backend of this server.
func (r *DriftSync) Backend() *backend.Backend {
	return r.backend
}

// Coordinator returns the sync coordinator of this server.
func (r *DriftSync) Coordinator() *sync.Coordinator {
	return r.coordinator
}

// GatewayAddr returns the gateway address of this server.
func (r *DriftSync) GatewayAddr() string {
	return r.conf.GatewayAddr()
}
