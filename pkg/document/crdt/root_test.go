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

package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/time"
)

func TestRoot(t *testing.T) {
	actorA, err := time.ActorIDFromHex("000000000000000000000001")
	assert.NoError(t, err)
	actorB, err := time.ActorIDFromHex("000000000000000000000002")
	assert.NoError(t, err)

	pos := crdt.Pos("V.000000000000000000000001" + "0000000000000001")

	t.Run("last writer wins test", func(t *testing.T) {
		root := crdt.NewRoot()
		assert.True(t, root.Write(pos, "first", time.NewTicket(1, actorA)))
		assert.True(t, root.Write(pos, "second", time.NewTicket(2, actorB)))

		// A stale write loses and changes nothing.
		assert.False(t, root.Write(pos, "stale", time.NewTicket(1, actorB)))

		reg, ok := root.Register(pos)
		assert.True(t, ok)
		assert.Equal(t, "second", reg.Value())
	})

	t.Run("ties are impossible by actor order test", func(t *testing.T) {
		rootAB := crdt.NewRoot()
		rootAB.Write(pos, "fromA", time.NewTicket(5, actorA))
		rootAB.Write(pos, "fromB", time.NewTicket(5, actorB))

		rootBA := crdt.NewRoot()
		rootBA.Write(pos, "fromB", time.NewTicket(5, actorB))
		rootBA.Write(pos, "fromA", time.NewTicket(5, actorA))

		regAB, _ := rootAB.Register(pos)
		regBA, _ := rootBA.Register(pos)
		assert.Equal(t, regAB.Value(), regBA.Value())
		assert.Equal(t, "fromB", regAB.Value())
	})

	t.Run("tombstone wins over concurrent update test", func(t *testing.T) {
		root := crdt.NewRoot()
		root.Write(pos, "value", time.NewTicket(1, actorA))
		root.Remove(pos, time.NewTicket(2, actorA))

		// A concurrent update with a higher ticket still stays hidden.
		changed := root.Write(pos, "update", time.NewTicket(3, actorB))
		assert.False(t, changed)
		assert.Equal(t, 0, root.Len())
	})

	t.Run("delete before insert arrival test", func(t *testing.T) {
		// The delete reaches this replica before the insert it targets.
		root := crdt.NewRoot()
		root.Remove(pos, time.NewTicket(2, actorA))
		changed := root.Write(pos, "late insert", time.NewTicket(1, actorA))
		assert.False(t, changed)
		assert.Equal(t, 0, root.Len())
	})

	t.Run("hidden state converges regardless of order test", func(t *testing.T) {
		write := time.NewTicket(1, actorA)
		update := time.NewTicket(3, actorB)
		remove := time.NewTicket(2, actorA)

		rootX := crdt.NewRoot()
		rootX.Write(pos, "v1", write)
		rootX.Write(pos, "v2", update)
		rootX.Remove(pos, remove)

		rootY := crdt.NewRoot()
		rootY.Remove(pos, remove)
		rootY.Write(pos, "v2", update)
		rootY.Write(pos, "v1", write)

		snapX, err := rootX.Snapshot()
		assert.NoError(t, err)
		snapY, err := rootY.Snapshot()
		assert.NoError(t, err)
		assert.Equal(t, string(snapX), string(snapY))
	})

	t.Run("snapshot roundtrip test", func(t *testing.T) {
		root := crdt.NewRoot()
		root.Write(pos, "value", time.NewTicket(1, actorA))
		root.MarkApplied("000000000000000000000001:1")

		snapshot, err := root.Snapshot()
		assert.NoError(t, err)

		restored, err := crdt.FromSnapshot(snapshot)
		assert.NoError(t, err)
		assert.Equal(t, root.Marshal(), restored.Marshal())
		assert.True(t, restored.HasApplied("000000000000000000000001:1"))

		restoredSnapshot, err := restored.Snapshot()
		assert.NoError(t, err)
		assert.Equal(t, string(snapshot), string(restoredSnapshot))
	})

	t.Run("empty snapshot test", func(t *testing.T) {
		restored, err := crdt.FromSnapshot(nil)
		assert.NoError(t, err)
		assert.Equal(t, 0, restored.Len())
	})
}
