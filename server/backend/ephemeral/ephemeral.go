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

// Package ephemeral provides the expiring key-value store that backs
// presence, typing, cursors and offline queues. Everything in it is
// reconstructible from client activity, so losing it degrades awareness
// without touching document state.
package ephemeral

import (
	"context"
	"time"

	"github.com/driftsync/driftsync/pkg/errors"
)

var (
	// ErrKeyNotFound is returned when the key does not exist or has expired.
	ErrKeyNotFound = errors.NotFound("ephemeral key not found").WithCode("ErrKeyNotFound")

	// ErrStoreUnavailable is returned when the store cannot be reached.
	ErrStoreUnavailable = errors.Unavailable("ephemeral store unavailable").WithCode("ErrStoreUnavailable")
)

// Store is an expiring key-value store.
type Store interface {
	// Set stores the value under the key with the given TTL. A zero TTL
	// stores without expiry.
	Set(ctx context.Context, k string, value []byte, ttl time.Duration) error

	// Get returns the value of the key, or ErrKeyNotFound.
	Get(ctx context.Context, k string) ([]byte, error)

	// Delete removes the key. Removing an absent key is not an error.
	Delete(ctx context.Context, k string) error

	// Keys returns the keys matching the given glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// RPush appends the values to the list under the key and refreshes the
	// list's TTL. The TTL bounds how long a disconnected client's buffered
	// work survives.
	RPush(ctx context.Context, k string, ttl time.Duration, values ...[]byte) error

	// Range returns the list under the key in insertion order without
	// consuming it. An absent list is an empty one.
	Range(ctx context.Context, k string) ([][]byte, error)

	// PopAll atomically returns the list under the key in insertion order
	// and removes it. Two concurrent drains never both receive entries.
	PopAll(ctx context.Context, k string) ([][]byte, error)

	// Close closes the store.
	Close() error
}
