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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftsync/driftsync/server/backend"
	"github.com/driftsync/driftsync/server/backend/database/mongo"
	"github.com/driftsync/driftsync/server/backend/ephemeral/redis"
	"github.com/driftsync/driftsync/server/gateway"
	"github.com/driftsync/driftsync/server/profiling"
)

// Below are the values of the default values of DriftSync config.
const (
	DefaultGatewayPort   = 8080
	DefaultProfilingPort = 8081

	DefaultOfflineRetention = 24 * time.Hour
	DefaultPresenceTTL      = 5 * time.Minute
	DefaultTypingTTL        = 30 * time.Second
	DefaultCursorTTL        = 5 * time.Minute
	DefaultSnapshotInterval = 100

	DefaultMongoConnectionURI     = "mongodb://localhost:27017"
	DefaultMongoConnectionTimeout = 5 * time.Second
	DefaultMongoPingTimeout       = 5 * time.Second
	DefaultMongoDriftSyncDatabase = "driftsync"

	DefaultRedisAddr = "localhost:6379"
)

// Config is the configuration for creating a DriftSync instance.
type Config struct {
	Gateway   *gateway.Config   `yaml:"Gateway"`
	Profiling *profiling.Config `yaml:"Profiling"`
	Backend   *backend.Config   `yaml:"Backend"`
	Mongo     *mongo.Config     `yaml:"Mongo"`
	Redis     *redis.Config     `yaml:"Redis"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	return newConfig(DefaultGatewayPort, DefaultProfilingPort)
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// GatewayAddr returns the gateway address.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("localhost:%d", c.Gateway.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return err
	}

	if err := c.Profiling.Validate(); err != nil {
		return err
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	if c.Gateway == nil {
		c.Gateway = &gateway.Config{}
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}

	if c.Profiling == nil {
		c.Profiling = &profiling.Config{}
	}
	if c.Profiling.Port == 0 {
		c.Profiling.Port = DefaultProfilingPort
	}

	if c.Backend == nil {
		c.Backend = &backend.Config{}
	}
	if c.Backend.OfflineRetention == "" {
		c.Backend.OfflineRetention = DefaultOfflineRetention.String()
	}
	if c.Backend.PresenceTTL == "" {
		c.Backend.PresenceTTL = DefaultPresenceTTL.String()
	}
	if c.Backend.TypingTTL == "" {
		c.Backend.TypingTTL = DefaultTypingTTL.String()
	}
	if c.Backend.CursorTTL == "" {
		c.Backend.CursorTTL = DefaultCursorTTL.String()
	}
	if c.Backend.SnapshotInterval == 0 {
		c.Backend.SnapshotInterval = DefaultSnapshotInterval
	}

	if c.Mongo != nil {
		if c.Mongo.ConnectionURI == "" {
			c.Mongo.ConnectionURI = DefaultMongoConnectionURI
		}

		if c.Mongo.ConnectionTimeout == "" {
			c.Mongo.ConnectionTimeout = DefaultMongoConnectionTimeout.String()
		}

		if c.Mongo.DriftSyncDatabase == "" {
			c.Mongo.DriftSyncDatabase = DefaultMongoDriftSyncDatabase
		}

		if c.Mongo.PingTimeout == "" {
			c.Mongo.PingTimeout = DefaultMongoPingTimeout.String()
		}
	}

	if c.Redis != nil && c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
}

func newConfig(port int, profilingPort int) *Config {
	return &Config{
		Gateway: &gateway.Config{
			Port: port,
		},
		Profiling: &profiling.Config{
			Port: profilingPort,
		},
		Backend: &backend.Config{
			OfflineRetention: DefaultOfflineRetention.String(),
			PresenceTTL:      DefaultPresenceTTL.String(),
			TypingTTL:        DefaultTypingTTL.String(),
			CursorTTL:        DefaultCursorTTL.String(),
			SnapshotInterval: DefaultSnapshotInterval,
		},
	}
}
