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

package backend

import (
	"fmt"
	"time"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// OfflineRetention is how long buffered offline operations survive
	// before they are dropped.
	OfflineRetention string `yaml:"OfflineRetention"`

	// PresenceTTL is the lease of a presence entry. A client that stops
	// heartbeating disappears after it.
	PresenceTTL string `yaml:"PresenceTTL"`

	// TypingTTL is the lease of a typing indicator.
	TypingTTL string `yaml:"TypingTTL"`

	// CursorTTL is the lease of a cursor entry.
	CursorTTL string `yaml:"CursorTTL"`

	// SnapshotInterval is the number of appended operations between stored
	// snapshots of a document.
	SnapshotInterval int64 `yaml:"SnapshotInterval"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	for flag, value := range map[string]string{
		"--backend-offline-retention": c.OfflineRetention,
		"--backend-presence-ttl":      c.PresenceTTL,
		"--backend-typing-ttl":        c.TypingTTL,
		"--backend-cursor-ttl":        c.CursorTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf(
				`invalid argument "%s" for "%s" flag: %w`,
				value,
				flag,
				err,
			)
		}
	}

	if c.SnapshotInterval < 1 {
		return fmt.Errorf("SnapshotInterval must be at least 1, given %d", c.SnapshotInterval)
	}

	return nil
}

// ParseOfflineRetention returns the offline retention duration.
func (c *Config) ParseOfflineRetention() time.Duration {
	result, err := time.ParseDuration(c.OfflineRetention)
	if err != nil {
		panic(err)
	}

	return result
}

// ParsePresenceTTL returns the presence TTL duration.
func (c *Config) ParsePresenceTTL() time.Duration {
	result, err := time.ParseDuration(c.PresenceTTL)
	if err != nil {
		panic(err)
	}

	return result
}

// ParseTypingTTL returns the typing TTL duration.
func (c *Config) ParseTypingTTL() time.Duration {
	result, err := time.ParseDuration(c.TypingTTL)
	if err != nil {
		panic(err)
	}

	return result
}

// ParseCursorTTL returns the cursor TTL duration.
func (c *Config) ParseCursorTTL() time.Duration {
	result, err := time.ParseDuration(c.CursorTTL)
	if err != nil {
		panic(err)
	}

	return result
}
