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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/server"
	"github.com/driftsync/driftsync/server/backend/database/mongo"
	"github.com/driftsync/driftsync/server/backend/ephemeral/redis"
	"github.com/driftsync/driftsync/server/logging"
)

var (
	gracefulTimeout = 10 * time.Second
)

var (
	flagConfPath string
	flagLogLevel string

	offlineRetention time.Duration
	presenceTTL      time.Duration
	typingTTL        time.Duration
	cursorTTL        time.Duration

	mongoConnectionURI     string
	mongoConnectionTimeout time.Duration
	mongoDriftSyncDatabase string
	mongoPingTimeout       time.Duration

	redisAddr     string
	redisPassword string
	redisDB       int

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start DriftSync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.Backend.OfflineRetention = offlineRetention.String()
			conf.Backend.PresenceTTL = presenceTTL.String()
			conf.Backend.TypingTTL = typingTTL.String()
			conf.Backend.CursorTTL = cursorTTL.String()

			if mongoConnectionURI != "" {
				conf.Mongo = &mongo.Config{
					ConnectionURI:     mongoConnectionURI,
					ConnectionTimeout: mongoConnectionTimeout.String(),
					DriftSyncDatabase: mongoDriftSyncDatabase,
					PingTimeout:       mongoPingTimeout.String(),
				}
			}

			if redisAddr != "" {
				conf.Redis = &redis.Config{
					Addr:     redisAddr,
					Password: redisPassword,
					DB:       redisDB,
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			if err := conf.Validate(); err != nil {
				return err
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}

			d, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := d.Start(); err != nil {
				return err
			}

			if code := handleSignal(d); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(d *server.DriftSync) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-d.ShutdownCh():
		// driftsync is already shutdown
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := d.Shutdown(graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().IntVar(
		&conf.Gateway.Port,
		"gateway-port",
		server.DefaultGatewayPort,
		"Gateway port",
	)
	cmd.Flags().IntVar(
		&conf.Profiling.Port,
		"profiling-port",
		server.DefaultProfilingPort,
		"Profiling port",
	)
	cmd.Flags().BoolVar(
		&conf.Profiling.EnablePprof,
		"enable-pprof",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().DurationVar(
		&offlineRetention,
		"backend-offline-retention",
		server.DefaultOfflineRetention,
		"How long operations buffered for a disconnected client survive",
	)
	cmd.Flags().DurationVar(
		&presenceTTL,
		"backend-presence-ttl",
		server.DefaultPresenceTTL,
		"Lease of a presence entry",
	)
	cmd.Flags().DurationVar(
		&typingTTL,
		"backend-typing-ttl",
		server.DefaultTypingTTL,
		"Lease of a typing indicator",
	)
	cmd.Flags().DurationVar(
		&cursorTTL,
		"backend-cursor-ttl",
		server.DefaultCursorTTL,
		"Lease of a cursor entry",
	)
	cmd.Flags().Int64Var(
		&conf.Backend.SnapshotInterval,
		"backend-snapshot-interval",
		server.DefaultSnapshotInterval,
		"Number of appended operations between stored snapshots",
	)
	cmd.Flags().StringVar(
		&mongoConnectionURI,
		"mongo-connection-uri",
		"",
		"MongoDB's connection URI",
	)
	cmd.Flags().DurationVar(
		&mongoConnectionTimeout,
		"mongo-connection-timeout",
		server.DefaultMongoConnectionTimeout,
		"Mongo DB's connection timeout",
	)
	cmd.Flags().StringVar(
		&mongoDriftSyncDatabase,
		"mongo-driftsync-database",
		server.DefaultMongoDriftSyncDatabase,
		"DriftSync's database name in MongoDB",
	)
	cmd.Flags().DurationVar(
		&mongoPingTimeout,
		"mongo-ping-timeout",
		server.DefaultMongoPingTimeout,
		"Mongo DB's ping timeout",
	)
	cmd.Flags().StringVar(
		&redisAddr,
		"redis-addr",
		"",
		"Redis address for the ephemeral store. Empty runs an embedded Redis.",
	)
	cmd.Flags().StringVar(
		&redisPassword,
		"redis-password",
		"",
		"Redis password",
	)
	cmd.Flags().IntVar(
		&redisDB,
		"redis-db",
		0,
		"Redis database number",
	)

	rootCmd.AddCommand(cmd)
}
