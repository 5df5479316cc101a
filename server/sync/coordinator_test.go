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

package sync_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/document"
	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/document/time"
	"github.com/driftsync/driftsync/server/backend"
	"github.com/driftsync/driftsync/server/backend/database"
	"github.com/driftsync/driftsync/server/backend/pubsub"
	"github.com/driftsync/driftsync/server/oplog"
	"github.com/driftsync/driftsync/server/profiling/prometheus"
	"github.com/driftsync/driftsync/server/sync"
)

// flakyDB fails the first few operation inserts with a retriable storage
// error, then recovers.
type flakyDB struct {
	database.Database
	remaining int
}

func (f *flakyDB) CreateOperationInfo(
	ctx context.Context,
	info *database.OperationInfo,
) (*database.OperationInfo, error) {
	if f.remaining > 0 {
		f.remaining--
		return nil, fmt.Errorf("create operation: %w", database.ErrStorageUnavailable)
	}
	return f.Database.CreateOperationInfo(ctx, info)
}

func setupCoordinator(t *testing.T) (*sync.Coordinator, *backend.Backend) {
	t.Helper()

	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)

	be, err := backend.New(&backend.Config{
		OfflineRetention: "24h",
		PresenceTTL:      "5m",
		TypingTTL:        "30s",
		CursorTTL:        "5m",
		SnapshotInterval: 100,
	}, nil, nil, metrics)
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, be.Shutdown())
	})

	return sync.NewCoordinator(be), be
}

func setupEditor(t *testing.T, hex string) *document.Editor {
	t.Helper()

	actor, err := time.ActorIDFromHex(hex)
	assert.NoError(t, err)
	return document.NewEditor(actor)
}

func encodeOps(ops ...operations.Operation) []*operations.Encoded {
	encoded := make([]*operations.Encoded, 0, len(ops))
	for _, op := range ops {
		encoded = append(encoded, operations.Encode(op))
	}
	return encoded
}

func TestCoordinator(t *testing.T) {
	ctx := context.Background()
	docKey := key.Key("coordinator-test-doc")

	t.Run("join and leave test", func(t *testing.T) {
		coordinator, _ := setupCoordinator(t)

		aliceJoin, err := coordinator.Join(ctx, sync.JoinRequest{
			WorkspaceID: "ws-1",
			UserID:      "alice",
		})
		assert.NoError(t, err)
		assert.Equal(t, sync.StateSynced, aliceJoin.Session.State())

		bobJoin, err := coordinator.Join(ctx, sync.JoinRequest{
			WorkspaceID: "ws-1",
			UserID:      "bob",
		})
		assert.NoError(t, err)

		// Alice is announced bob's arrival.
		event := <-aliceJoin.Session.Events()
		assert.Equal(t, pubsub.UserJoinedEvent, event.Type)
		assert.Equal(t, "bob", event.Publisher)

		assert.NoError(t, coordinator.Leave(ctx, bobJoin.Session.ID()))
		event = <-aliceJoin.Session.Events()
		assert.Equal(t, pubsub.UserLeftEvent, event.Type)
		assert.Equal(t, "bob", event.Publisher)

		_, err = coordinator.FindSession(bobJoin.Session.ID())
		assert.ErrorIs(t, err, sync.ErrSessionNotFound)
	})

	t.Run("submit merges and broadcasts test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		aliceJoin, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "alice"})
		assert.NoError(t, err)
		bobJoin, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "bob"})
		assert.NoError(t, err)
		<-aliceJoin.Session.Events() // bob's join announcement

		editor := setupEditor(t, "000000000000000000000001")
		first, err := editor.InsertBetween("", "", "hello")
		assert.NoError(t, err)
		second, err := editor.InsertBetween(first.Pos(), "", "world")
		assert.NoError(t, err)

		result, err := coordinator.SubmitOperations(ctx, aliceJoin.Session.ID(), docKey, encodeOps(first, second))
		assert.NoError(t, err)
		assert.Equal(t, 2, result.Applied)
		assert.Equal(t, 0, result.Duplicates)
		assert.Equal(t, int64(2), result.Version)
		assert.Equal(t, int64(2), result.ServerSeq)

		event := <-bobJoin.Session.Events()
		assert.Equal(t, pubsub.DocUpdateEvent, event.Type)
		assert.Equal(t, "alice", event.Publisher)
		assert.Equal(t, docKey, event.DocKey)
		assert.Len(t, event.Operations, 2)
		assert.Equal(t, int64(2), event.Version)
	})

	t.Run("resubmitted batch is absorbed test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		join, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "alice"})
		assert.NoError(t, err)

		editor := setupEditor(t, "000000000000000000000001")
		op, err := editor.InsertBetween("", "", "once")
		assert.NoError(t, err)
		batch := encodeOps(op)

		result, err := coordinator.SubmitOperations(ctx, join.Session.ID(), docKey, batch)
		assert.NoError(t, err)
		assert.Equal(t, 1, result.Applied)

		// The client timed out on the ack and resubmitted.
		result, err = coordinator.SubmitOperations(ctx, join.Session.ID(), docKey, batch)
		assert.NoError(t, err)
		assert.Equal(t, 0, result.Applied)
		assert.Equal(t, 1, result.Duplicates)
		assert.Equal(t, int64(1), result.Version)
		assert.Equal(t, int64(1), result.ServerSeq)
	})

	t.Run("malformed batch is rejected test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		join, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "alice"})
		assert.NoError(t, err)

		_, err = coordinator.SubmitOperations(ctx, join.Session.ID(), docKey, []*operations.Encoded{{
			Type: "insert",
		}})
		assert.ErrorIs(t, err, operations.ErrInvalidOperation)
	})

	t.Run("offline buffer replays on join test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		editor := setupEditor(t, "000000000000000000000001")
		first, err := editor.InsertBetween("", "", "offline")
		assert.NoError(t, err)
		second, err := editor.InsertBetween(first.Pos(), "", "work")
		assert.NoError(t, err)

		assert.NoError(t, coordinator.BufferOffline(ctx, "alice", docKey, encodeOps(first, second)))

		join, err := coordinator.Join(ctx, sync.JoinRequest{
			WorkspaceID: "ws-1",
			UserID:      "alice",
			OfflineDocs: []key.Key{docKey},
		})
		assert.NoError(t, err)
		assert.Len(t, join.Replays, 1)
		assert.Equal(t, docKey, join.Replays[0].DocKey)
		assert.Equal(t, 2, join.Replays[0].Replayed)
		assert.False(t, join.Replays[0].Expired)

		state, err := coordinator.GetState(ctx, docKey)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), state.Version)
		assert.Equal(t, int64(2), state.ServerSeq)

		// The queue is consumed; a second join has nothing left and reports
		// the queue expired.
		assert.NoError(t, coordinator.Leave(ctx, join.Session.ID()))
		rejoin, err := coordinator.Join(ctx, sync.JoinRequest{
			WorkspaceID: "ws-1",
			UserID:      "alice",
			OfflineDocs: []key.Key{docKey},
		})
		assert.NoError(t, err)
		assert.True(t, rejoin.Replays[0].Expired)
		assert.Equal(t, 0, rejoin.Replays[0].Replayed)
	})

	t.Run("failed offline replay unwinds the join test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)

		// The buffered work targets a document that was never created, so
		// the replay fails mid-join.
		missing := key.Key("coordinator-missing-doc")
		editor := setupEditor(t, "000000000000000000000001")
		op, err := editor.InsertBetween("", "", "stranded")
		assert.NoError(t, err)
		assert.NoError(t, coordinator.BufferOffline(ctx, "alice", missing, encodeOps(op)))

		_, err = coordinator.Join(ctx, sync.JoinRequest{
			WorkspaceID: "ws-1",
			UserID:      "alice",
			OfflineDocs: []key.Key{missing},
		})
		assert.ErrorIs(t, err, database.ErrDocumentNotFound)

		// The half-registered session is gone and the buffered work is still
		// queued for the next join.
		assert.Equal(t, 0, be.PubSub.SubscriberCount("ws-1"))
		entries, err := be.Offline.Peek(ctx, "alice", missing)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("transient storage outage is retried test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		flaky := &flakyDB{Database: be.DB, remaining: 2}
		be.DB = flaky
		be.OpLog = oplog.New(flaky)

		join, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "alice"})
		assert.NoError(t, err)

		editor := setupEditor(t, "000000000000000000000001")
		op, err := editor.InsertBetween("", "", "retried")
		assert.NoError(t, err)

		result, err := coordinator.SubmitOperations(ctx, join.Session.ID(), docKey, encodeOps(op))
		assert.NoError(t, err)
		assert.Equal(t, 1, result.Applied)
		assert.Equal(t, 0, flaky.remaining)
	})

	t.Run("expired offline queue is surfaced test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		join, err := coordinator.Join(ctx, sync.JoinRequest{
			WorkspaceID: "ws-1",
			UserID:      "alice",
			OfflineDocs: []key.Key{docKey},
		})
		assert.NoError(t, err)
		assert.Len(t, join.Replays, 1)
		assert.True(t, join.Replays[0].Expired)
	})

	t.Run("get since test", func(t *testing.T) {
		coordinator, be := setupCoordinator(t)
		_, err := be.DB.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		join, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "alice"})
		assert.NoError(t, err)

		editor := setupEditor(t, "000000000000000000000001")
		var ops []operations.Operation
		var pos crdt.Pos
		for i := 0; i < 3; i++ {
			op, err := editor.InsertBetween(pos, "", "x")
			assert.NoError(t, err)
			ops = append(ops, op)
			pos = op.Pos()
		}

		_, err = coordinator.SubmitOperations(ctx, join.Session.ID(), docKey, encodeOps(ops...))
		assert.NoError(t, err)

		encoded, last, err := coordinator.GetSince(ctx, docKey, 1, 0)
		assert.NoError(t, err)
		assert.Len(t, encoded, 2)
		assert.Equal(t, int64(3), last)
	})

	t.Run("awareness updates fan out test", func(t *testing.T) {
		coordinator, _ := setupCoordinator(t)

		aliceJoin, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "alice"})
		assert.NoError(t, err)
		bobJoin, err := coordinator.Join(ctx, sync.JoinRequest{WorkspaceID: "ws-1", UserID: "bob"})
		assert.NoError(t, err)
		<-aliceJoin.Session.Events() // bob's join announcement

		assert.NoError(t, coordinator.UpdatePresence(ctx, aliceJoin.Session.ID(), "away", nil))
		event := <-bobJoin.Session.Events()
		assert.Equal(t, pubsub.PresenceUpdateEvent, event.Type)
		assert.Equal(t, "alice", event.Publisher)

		assert.NoError(t, coordinator.UpdateTyping(ctx, aliceJoin.Session.ID(), docKey, true))
		event = <-bobJoin.Session.Events()
		assert.Equal(t, pubsub.TypingUpdateEvent, event.Type)
		assert.Equal(t, docKey, event.DocKey)

		assert.NoError(t, coordinator.UpdateCursor(
			ctx,
			aliceJoin.Session.ID(),
			docKey,
			"V.0000000000000000000000010000000000000001",
		))
		event = <-bobJoin.Session.Events()
		assert.Equal(t, pubsub.CursorUpdateEvent, event.Type)
	})

	t.Run("unknown session test", func(t *testing.T) {
		coordinator, _ := setupCoordinator(t)

		_, err := coordinator.SubmitOperations(ctx, "no-such-session", docKey, nil)
		assert.ErrorIs(t, err, sync.ErrSessionNotFound)

		assert.ErrorIs(t, coordinator.Leave(ctx, "no-such-session"), sync.ErrSessionNotFound)
	})
}
