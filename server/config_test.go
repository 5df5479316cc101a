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

package server_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/server"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfigFromFile(t *testing.T) {
	t.Run("fail read non-existing config file test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile("nowhere.yml")
		assert.Error(t, err)
		assert.Nil(t, conf)
	})

	t.Run("empty config file applies defaults test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile(writeConfigFile(t, ""))
		assert.NoError(t, err)
		assert.NoError(t, conf.Validate())

		assert.Equal(t, server.DefaultGatewayPort, conf.Gateway.Port)
		assert.Equal(t, server.DefaultProfilingPort, conf.Profiling.Port)
		assert.Equal(t, server.DefaultOfflineRetention.String(), conf.Backend.OfflineRetention)
		assert.Equal(t, server.DefaultPresenceTTL.String(), conf.Backend.PresenceTTL)
		assert.Equal(t, server.DefaultTypingTTL.String(), conf.Backend.TypingTTL)
		assert.Equal(t, server.DefaultCursorTTL.String(), conf.Backend.CursorTTL)
		assert.Equal(t, int64(server.DefaultSnapshotInterval), conf.Backend.SnapshotInterval)

		// Mongo and Redis stay nil unless configured: the server falls back
		// to its in-memory stores.
		assert.Nil(t, conf.Mongo)
		assert.Nil(t, conf.Redis)
	})

	t.Run("given values win over defaults test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile(writeConfigFile(t, `
Gateway:
  Port: 9090
Backend:
  OfflineRetention: "48h0m0s"
  SnapshotInterval: 50
`))
		assert.NoError(t, err)
		assert.NoError(t, conf.Validate())

		assert.Equal(t, 9090, conf.Gateway.Port)
		assert.Equal(t, "48h0m0s", conf.Backend.OfflineRetention)
		assert.Equal(t, int64(50), conf.Backend.SnapshotInterval)
		assert.Equal(t, server.DefaultPresenceTTL.String(), conf.Backend.PresenceTTL)
		assert.Equal(t, "localhost:9090", conf.GatewayAddr())
	})

	t.Run("partial mongo section is filled in test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile(writeConfigFile(t, `
Mongo:
  ConnectionURI: "mongodb://db.internal:27017"
Redis: {}
`))
		assert.NoError(t, err)
		assert.NoError(t, conf.Validate())

		assert.Equal(t, "mongodb://db.internal:27017", conf.Mongo.ConnectionURI)
		assert.Equal(t, server.DefaultMongoConnectionTimeout.String(), conf.Mongo.ConnectionTimeout)
		assert.Equal(t, server.DefaultMongoDriftSyncDatabase, conf.Mongo.DriftSyncDatabase)
		assert.Equal(t, server.DefaultMongoPingTimeout.String(), conf.Mongo.PingTimeout)
		assert.Equal(t, server.DefaultRedisAddr, conf.Redis.Addr)
	})

	t.Run("invalid durations are rejected test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile(writeConfigFile(t, `
Backend:
  PresenceTTL: "5minutes"
`))
		assert.NoError(t, err)
		assert.Error(t, conf.Validate())
	})

	t.Run("invalid ports are rejected test", func(t *testing.T) {
		conf := server.NewConfig()
		conf.Gateway.Port = -1
		assert.Error(t, conf.Validate())

		conf = server.NewConfig()
		conf.Profiling.Port = 70000
		assert.Error(t, conf.Validate())
	})
}
