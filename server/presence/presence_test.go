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

package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/server/backend/ephemeral"
	"github.com/driftsync/driftsync/server/backend/ephemeral/redis"
	"github.com/driftsync/driftsync/server/presence"
)

func setupRegistry(t *testing.T) (*presence.Registry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := redis.NewFromClient(goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	}))
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return presence.NewRegistry(store), mr
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	docKey := key.Key("presence-test-doc")

	t.Run("set and get presence test", func(t *testing.T) {
		registry, _ := setupRegistry(t)

		info, err := registry.SetPresence(ctx, "ws-1", "alice", "online", map[string]interface{}{
			"display_name": "Alice",
		})
		assert.NoError(t, err)
		assert.Equal(t, "alice", info.UserID)

		stored, err := registry.GetPresence(ctx, "ws-1", "alice")
		assert.NoError(t, err)
		assert.Equal(t, "online", stored.Status)
		assert.Equal(t, "ws-1", stored.WorkspaceID)
	})

	t.Run("list workspace presence test", func(t *testing.T) {
		registry, _ := setupRegistry(t)

		_, err := registry.SetPresence(ctx, "ws-1", "alice", "online", nil)
		assert.NoError(t, err)
		_, err = registry.SetPresence(ctx, "ws-1", "bob", "away", nil)
		assert.NoError(t, err)
		_, err = registry.SetPresence(ctx, "ws-2", "carol", "online", nil)
		assert.NoError(t, err)

		infos, err := registry.ListWorkspace(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, infos, 2)
	})

	t.Run("presence expires test", func(t *testing.T) {
		registry, mr := setupRegistry(t)

		_, err := registry.SetPresence(ctx, "ws-1", "alice", "online", nil)
		assert.NoError(t, err)

		mr.FastForward(presence.DefaultPresenceTTL + time.Second)
		_, err = registry.GetPresence(ctx, "ws-1", "alice")
		assert.ErrorIs(t, err, ephemeral.ErrKeyNotFound)

		infos, err := registry.ListWorkspace(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, infos, 0)
	})

	t.Run("typing set and clear test", func(t *testing.T) {
		registry, _ := setupRegistry(t)

		assert.NoError(t, registry.SetTyping(ctx, "ws-1", "alice", docKey, true))

		typing, err := registry.ListTyping(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Equal(t, map[string]key.Key{"alice": docKey}, typing)

		// Clearing drops the indicator immediately rather than waiting
		// out the TTL.
		assert.NoError(t, registry.SetTyping(ctx, "ws-1", "alice", docKey, false))
		typing, err = registry.ListTyping(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, typing, 0)
	})

	t.Run("typing expires test", func(t *testing.T) {
		registry, mr := setupRegistry(t)

		assert.NoError(t, registry.SetTyping(ctx, "ws-1", "alice", docKey, true))

		mr.FastForward(presence.DefaultTypingTTL + time.Second)
		typing, err := registry.ListTyping(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, typing, 0)
	})

	t.Run("cursor test", func(t *testing.T) {
		registry, _ := setupRegistry(t)

		cursor, err := registry.SetCursor(ctx, "ws-1", "alice", docKey, "V.0000000000000000000000010000000000000001")
		assert.NoError(t, err)
		assert.Equal(t, docKey, cursor.DocKey)

		_, err = registry.SetCursor(ctx, "ws-1", "bob", docKey, "X.0000000000000000000000020000000000000001")
		assert.NoError(t, err)

		cursors, err := registry.ListCursors(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, cursors, 2)
	})

	t.Run("remove drops all awareness state test", func(t *testing.T) {
		registry, _ := setupRegistry(t)

		_, err := registry.SetPresence(ctx, "ws-1", "alice", "online", nil)
		assert.NoError(t, err)
		assert.NoError(t, registry.SetTyping(ctx, "ws-1", "alice", docKey, true))
		_, err = registry.SetCursor(ctx, "ws-1", "alice", docKey, "V.0000000000000000000000010000000000000001")
		assert.NoError(t, err)

		assert.NoError(t, registry.Remove(ctx, "ws-1", "alice"))

		_, err = registry.GetPresence(ctx, "ws-1", "alice")
		assert.ErrorIs(t, err, ephemeral.ErrKeyNotFound)

		typing, err := registry.ListTyping(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, typing, 0)

		cursors, err := registry.ListCursors(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, cursors, 0)
	})
}
