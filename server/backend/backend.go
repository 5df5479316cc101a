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

// Package backend wires the stores, locks and event hub the services run on.
package backend

import (
	"fmt"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"

	"github.com/driftsync/driftsync/pkg/locker"
	"github.com/driftsync/driftsync/server/backend/database"
	"github.com/driftsync/driftsync/server/backend/database/memory"
	"github.com/driftsync/driftsync/server/backend/database/mongo"
	"github.com/driftsync/driftsync/server/backend/ephemeral"
	"github.com/driftsync/driftsync/server/backend/ephemeral/redis"
	"github.com/driftsync/driftsync/server/backend/pubsub"
	"github.com/driftsync/driftsync/server/logging"
	"github.com/driftsync/driftsync/server/offline"
	"github.com/driftsync/driftsync/server/oplog"
	"github.com/driftsync/driftsync/server/presence"
	"github.com/driftsync/driftsync/server/profiling/prometheus"
)

// Backend manages DriftSync's shared infrastructure: the durable store, the
// ephemeral store, per-document locks, the event hub and the services built
// on them.
type Backend struct {
	Config  *Config
	Metrics *prometheus.Metrics

	DB        database.Database
	Ephemeral ephemeral.Store
	Lockers   *locker.Locker
	PubSub    *pubsub.PubSub

	OpLog    *oplog.Log
	Offline  *offline.Queue
	Presence *presence.Registry

	// embeddedRedis is the in-process Redis used when no external one is
	// configured. Dev and test only.
	embeddedRedis *miniredis.Miniredis
}

// New creates a new instance of Backend. A nil mongoConf selects the
// in-memory database; a nil redisConf starts an in-process Redis.
func New(
	conf *Config,
	mongoConf *mongo.Config,
	redisConf *redis.Config,
	metrics *prometheus.Metrics,
) (*Backend, error) {
	var db database.Database
	var err error
	if mongoConf != nil {
		db, err = mongo.Dial(mongoConf)
	} else {
		db, err = memory.New()
	}
	if err != nil {
		return nil, err
	}

	var store ephemeral.Store
	var embedded *miniredis.Miniredis
	if redisConf != nil {
		store, err = redis.Dial(redisConf)
		if err != nil {
			return nil, err
		}
	} else {
		embedded, err = miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("run embedded redis: %w", err)
		}
		store = redis.NewFromClient(goredis.NewClient(&goredis.Options{
			Addr: embedded.Addr(),
		}))
		logging.DefaultLogger().Infof("embedded Redis started, Addr: %s", embedded.Addr())
	}

	return &Backend{
		Config:  conf,
		Metrics: metrics,

		DB:        db,
		Ephemeral: store,
		Lockers:   locker.New(),
		PubSub:    pubsub.New(),

		OpLog:   oplog.New(db),
		Offline: offline.NewQueue(store, conf.ParseOfflineRetention()),
		Presence: presence.NewRegistry(store, presence.WithTTLs(
			conf.ParsePresenceTTL(),
			conf.ParseTypingTTL(),
			conf.ParseCursorTTL(),
		)),

		embeddedRedis: embedded,
	}, nil
}

// Shutdown closes all resources of this backend.
func (b *Backend) Shutdown() error {
	if err := b.Ephemeral.Close(); err != nil {
		return err
	}
	if b.embeddedRedis != nil {
		b.embeddedRedis.Close()
	}
	if err := b.DB.Close(); err != nil {
		return err
	}
	return nil
}
