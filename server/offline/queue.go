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

// Package offline buffers operations produced while a client was
// disconnected until its next reconnect. Entries live in the ephemeral store
// under a TTL: work buffered longer than the retention window is dropped,
// and the owning client must be told rather than silently losing it.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	gotime "time"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/errors"
	"github.com/driftsync/driftsync/server/backend/ephemeral"
)

// DefaultRetention is how long buffered offline work survives.
const DefaultRetention = 24 * gotime.Hour

// ErrQueueExpired is returned when a client reports buffered offline work
// but the queue's retention window has already elapsed.
var ErrQueueExpired = errors.NotFound("offline queue expired").WithCode("ErrQueueExpired")

// Entry is one buffered batch of operations for a document.
type Entry struct {
	DocKey     key.Key               `json:"doc_key"`
	Operations []*operations.Encoded `json:"operations"`
	BufferedAt gotime.Time           `json:"buffered_at"`
}

// Queue buffers per-user, per-document operation batches.
type Queue struct {
	store     ephemeral.Store
	retention gotime.Duration
}

// NewQueue creates an instance of Queue.
func NewQueue(store ephemeral.Store, retention gotime.Duration) *Queue {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Queue{
		store:     store,
		retention: retention,
	}
}

func queueKey(userID string, docKey key.Key) string {
	return fmt.Sprintf("offline_ops:%s:%s", userID, docKey)
}

// Enqueue appends a batch to the user's queue for the document. Each push
// refreshes the retention window of the whole queue.
func (q *Queue) Enqueue(
	ctx context.Context,
	userID string,
	docKey key.Key,
	ops []*operations.Encoded,
) error {
	if len(ops) == 0 {
		return nil
	}

	entry := Entry{
		DocKey:     docKey,
		Operations: ops,
		BufferedAt: gotime.Now(),
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal offline entry: %w", err)
	}

	return q.store.RPush(ctx, queueKey(userID, docKey), q.retention, encoded)
}

// Drain atomically consumes the user's queue for the document and returns
// the buffered batches in the order they were pushed. Concurrent drains of
// the same queue never both receive entries.
func (q *Queue) Drain(
	ctx context.Context,
	userID string,
	docKey key.Key,
) ([]Entry, error) {
	values, err := q.store.PopAll(ctx, queueKey(userID, docKey))
	if err != nil {
		return nil, err
	}

	return decodeEntries(values)
}

// Peek returns the buffered batches without consuming them.
func (q *Queue) Peek(
	ctx context.Context,
	userID string,
	docKey key.Key,
) ([]Entry, error) {
	values, err := q.store.Range(ctx, queueKey(userID, docKey))
	if err != nil {
		return nil, err
	}

	return decodeEntries(values)
}

// PeekAll returns the buffered batches of the user across all documents,
// keyed by document.
func (q *Queue) PeekAll(
	ctx context.Context,
	userID string,
) (map[key.Key][]Entry, error) {
	keys, err := q.store.Keys(ctx, queueKey(userID, "*"))
	if err != nil {
		return nil, err
	}

	all := make(map[key.Key][]Entry)
	for _, k := range keys {
		values, err := q.store.Range(ctx, k)
		if err != nil {
			return nil, err
		}

		entries, err := decodeEntries(values)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			all[entry.DocKey] = append(all[entry.DocKey], entry)
		}
	}

	return all, nil
}

func decodeEntries(values [][]byte) ([]Entry, error) {
	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		var entry Entry
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal offline entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
