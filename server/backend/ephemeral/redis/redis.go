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

// Package redis implements the ephemeral store on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/driftsync/driftsync/server/backend/ephemeral"
	"github.com/driftsync/driftsync/server/logging"
)

// Config is the configuration for the Redis-backed ephemeral store.
type Config struct {
	Addr     string `yaml:"Addr"`
	Password string `yaml:"Password"`
	DB       int    `yaml:"DB"`
}

// Store is a Redis-backed implementation of ephemeral.Store.
type Store struct {
	client *goredis.Client
}

// Dial creates an instance of Store and dials the given Redis.
func Dial(conf *Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", conf.Addr, err)
	}

	logging.DefaultLogger().Infof("Redis connected, Addr: %s", conf.Addr)

	return &Store{client: client}, nil
}

// NewFromClient creates an instance of Store backed by an existing client.
// Tests use it with an in-process Redis.
func NewFromClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Set stores the value under the key with the given TTL.
func (s *Store) Set(ctx context.Context, k string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %v: %w", k, err, ephemeral.ErrStoreUnavailable)
	}
	return nil
}

// Get returns the value of the key.
func (s *Store) Get(ctx context.Context, k string) ([]byte, error) {
	value, err := s.client.Get(ctx, k).Bytes()
	if err == goredis.Nil {
		return nil, fmt.Errorf("%s: %w", k, ephemeral.ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %v: %w", k, err, ephemeral.ErrStoreUnavailable)
	}
	return value, nil
}

// Delete removes the key.
func (s *Store) Delete(ctx context.Context, k string) error {
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("del %s: %v: %w", k, err, ephemeral.ErrStoreUnavailable)
	}
	return nil
}

// Keys returns the keys matching the given glob pattern.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %v: %w", pattern, err, ephemeral.ErrStoreUnavailable)
	}
	return keys, nil
}

// RPush appends the values to the list under the key and refreshes its TTL.
func (s *Store) RPush(ctx context.Context, k string, ttl time.Duration, values ...[]byte) error {
	members := make([]interface{}, len(values))
	for i, v := range values {
		members[i] = v
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, members...)
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rpush %s: %v: %w", k, err, ephemeral.ErrStoreUnavailable)
	}
	return nil
}

// Range returns the list under the key without consuming it.
func (s *Store) Range(ctx context.Context, k string) ([][]byte, error) {
	entries, err := s.client.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %v: %w", k, err, ephemeral.ErrStoreUnavailable)
	}

	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = []byte(e)
	}
	return values, nil
}

// PopAll atomically returns the list under the key and removes it.
func (s *Store) PopAll(ctx context.Context, k string) ([][]byte, error) {
	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, k, 0, -1)
	pipe.Del(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("popall %s: %v: %w", k, err, ephemeral.ErrStoreUnavailable)
	}

	entries := rangeCmd.Val()
	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = []byte(e)
	}
	return values, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
