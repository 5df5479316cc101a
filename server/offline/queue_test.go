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

package offline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/server/backend/ephemeral/redis"
	"github.com/driftsync/driftsync/server/offline"
)

func setupQueue(t *testing.T, retention time.Duration) (*offline.Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := redis.NewFromClient(goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	}))
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return offline.NewQueue(store, retention), mr
}

func insertOp(seq int64) *operations.Encoded {
	return &operations.Encoded{
		Type:    operations.TypeInsert,
		Actor:   "000000000000000000000001",
		Seq:     seq,
		Pos:     fmt.Sprintf("V.000000000000000000000001%016d", seq),
		Value:   fmt.Sprintf("value-%d", seq),
		Lamport: seq,
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	docKey := key.Key("offline-test-doc")

	t.Run("drain preserves push order test", func(t *testing.T) {
		queue, _ := setupQueue(t, time.Hour)

		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(1)}))
		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(2), insertOp(3)}))

		entries, err := queue.Drain(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Len(t, entries[0].Operations, 1)
		assert.Equal(t, int64(1), entries[0].Operations[0].Seq)
		assert.Len(t, entries[1].Operations, 2)
		assert.Equal(t, int64(2), entries[1].Operations[0].Seq)

		// Drained means gone.
		again, err := queue.Drain(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, again, 0)
	})

	t.Run("queues are per user and per document test", func(t *testing.T) {
		queue, _ := setupQueue(t, time.Hour)
		otherKey := key.Key("offline-test-other")

		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(1)}))
		assert.NoError(t, queue.Enqueue(ctx, "alice", otherKey, []*operations.Encoded{insertOp(2)}))
		assert.NoError(t, queue.Enqueue(ctx, "bob", docKey, []*operations.Encoded{insertOp(3)}))

		entries, err := queue.Drain(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, int64(1), entries[0].Operations[0].Seq)

		bobEntries, err := queue.Peek(ctx, "bob", docKey)
		assert.NoError(t, err)
		assert.Len(t, bobEntries, 1)
	})

	t.Run("peek does not consume test", func(t *testing.T) {
		queue, _ := setupQueue(t, time.Hour)

		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(1)}))

		entries, err := queue.Peek(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)

		entries, err = queue.Peek(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("peek all groups by document test", func(t *testing.T) {
		queue, _ := setupQueue(t, time.Hour)
		otherKey := key.Key("offline-test-other")

		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(1)}))
		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(2)}))
		assert.NoError(t, queue.Enqueue(ctx, "alice", otherKey, []*operations.Encoded{insertOp(3)}))

		all, err := queue.PeekAll(ctx, "alice")
		assert.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Len(t, all[docKey], 2)
		assert.Len(t, all[otherKey], 1)
	})

	t.Run("retention window test", func(t *testing.T) {
		queue, mr := setupQueue(t, time.Hour)

		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(1)}))

		// A later push refreshes the whole queue's lease.
		mr.FastForward(30 * time.Minute)
		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, []*operations.Encoded{insertOp(2)}))

		mr.FastForward(59 * time.Minute)
		entries, err := queue.Peek(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 2)

		mr.FastForward(2 * time.Minute)
		entries, err = queue.Drain(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 0)
	})

	t.Run("empty batch is a no-op test", func(t *testing.T) {
		queue, _ := setupQueue(t, time.Hour)

		assert.NoError(t, queue.Enqueue(ctx, "alice", docKey, nil))
		entries, err := queue.Peek(ctx, "alice", docKey)
		assert.NoError(t, err)
		assert.Len(t, entries, 0)
	})
}
