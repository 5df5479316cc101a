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

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/server/backend/database"
	"github.com/driftsync/driftsync/server/backend/database/memory"
)

func encodedOp(actor string, seq int64) *operations.Encoded {
	return &operations.Encoded{
		Type:    operations.TypeInsert,
		Actor:   actor,
		Seq:     seq,
		Pos:     "V.000000000000000000000001" + "0000000000000001",
		Value:   "hello",
		Lamport: seq,
	}
}

func TestDB(t *testing.T) {
	ctx := context.Background()
	actorA := "000000000000000000000001"
	docKey := key.Key("memory-test-doc")

	t.Run("ensure doc info test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		created, err := db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)
		assert.Equal(t, docKey, created.Key)
		assert.Equal(t, "ws-1", created.WorkspaceID)

		// Ensuring again returns the existing document untouched.
		again, err := db.EnsureDocInfo(ctx, "ws-other", docKey, "Other")
		assert.NoError(t, err)
		assert.Equal(t, "ws-1", again.WorkspaceID)
		assert.Equal(t, "Title", again.Title)
	})

	t.Run("find doc info test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.FindDocInfoByKey(ctx, docKey)
		assert.ErrorIs(t, err, database.ErrDocumentNotFound)

		_, err = db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		found, err := db.FindDocInfoByKey(ctx, docKey)
		assert.NoError(t, err)
		assert.Equal(t, docKey, found.Key)
	})

	t.Run("list doc infos by workspace test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.EnsureDocInfo(ctx, "ws-1", "doc-aaaa", "A")
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-1", "doc-bbbb", "B")
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-2", "doc-cccc", "C")
		assert.NoError(t, err)

		infos, err := db.FindDocInfosByWorkspace(ctx, "ws-1")
		assert.NoError(t, err)
		assert.Len(t, infos, 2)
	})

	t.Run("append assigns increasing server seq test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		for seq := int64(1); seq <= 3; seq++ {
			info, err := db.CreateOperationInfo(
				ctx,
				database.NewOperationInfo(docKey, encodedOp(actorA, seq), database.OriginLive),
			)
			assert.NoError(t, err)
			assert.Equal(t, seq, info.ServerSeq)
		}

		docInfo, err := db.FindDocInfoByKey(ctx, docKey)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), docInfo.ServerSeq)
	})

	t.Run("append duplicate operation test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		_, err = db.CreateOperationInfo(
			ctx,
			database.NewOperationInfo(docKey, encodedOp(actorA, 1), database.OriginLive),
		)
		assert.NoError(t, err)

		_, err = db.CreateOperationInfo(
			ctx,
			database.NewOperationInfo(docKey, encodedOp(actorA, 1), database.OriginLive),
		)
		assert.ErrorIs(t, err, database.ErrOperationAlreadyExists)

		// The duplicate must not burn a server sequence.
		info, err := db.CreateOperationInfo(
			ctx,
			database.NewOperationInfo(docKey, encodedOp(actorA, 2), database.OriginLive),
		)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), info.ServerSeq)
	})

	t.Run("find operations since server seq test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)
		otherKey := key.Key("memory-test-other")
		_, err = db.EnsureDocInfo(ctx, "ws-1", otherKey, "Other")
		assert.NoError(t, err)

		for seq := int64(1); seq <= 5; seq++ {
			_, err = db.CreateOperationInfo(
				ctx,
				database.NewOperationInfo(docKey, encodedOp(actorA, seq), database.OriginLive),
			)
			assert.NoError(t, err)
		}
		_, err = db.CreateOperationInfo(
			ctx,
			database.NewOperationInfo(otherKey, encodedOp(actorA, 1), database.OriginLive),
		)
		assert.NoError(t, err)

		infos, err := db.FindOperationInfosSinceServerSeq(ctx, docKey, 2, 0)
		assert.NoError(t, err)
		assert.Len(t, infos, 3)
		assert.Equal(t, int64(3), infos[0].ServerSeq)
		assert.Equal(t, int64(5), infos[2].ServerSeq)

		limited, err := db.FindOperationInfosSinceServerSeq(ctx, docKey, 0, 2)
		assert.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("update snapshot test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)

		err = db.UpdateDocSnapshot(ctx, docKey, 3, 3, map[string]int64{actorA: 3}, []byte(`{}`))
		assert.NoError(t, err)

		info, err := db.FindDocInfoByKey(ctx, docKey)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), info.Version)
		assert.Equal(t, int64(3), info.SnapshotSeq)
		assert.Equal(t, []byte(`{}`), info.Snapshot)

		// A stale snapshot update is rejected.
		err = db.UpdateDocSnapshot(ctx, docKey, 1, 1, nil, []byte(`{}`))
		assert.ErrorIs(t, err, database.ErrConflictOnUpdate)
	})

	t.Run("remove doc info test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)
		_, err = db.EnsureDocInfo(ctx, "ws-1", docKey, "Title")
		assert.NoError(t, err)
		_, err = db.CreateOperationInfo(
			ctx,
			database.NewOperationInfo(docKey, encodedOp(actorA, 1), database.OriginLive),
		)
		assert.NoError(t, err)

		assert.NoError(t, db.RemoveDocInfo(ctx, docKey))
		_, err = db.FindDocInfoByKey(ctx, docKey)
		assert.ErrorIs(t, err, database.ErrDocumentNotFound)

		infos, err := db.FindOperationInfosSinceServerSeq(ctx, docKey, 0, 0)
		assert.NoError(t, err)
		assert.Len(t, infos, 0)

		assert.ErrorIs(t, db.RemoveDocInfo(ctx, docKey), database.ErrDocumentNotFound)
	})
}
