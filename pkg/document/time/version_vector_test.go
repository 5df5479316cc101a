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

package time_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/document/time"
)

func TestVersionVector(t *testing.T) {
	actorA := "000000000000000000000001"
	actorB := "000000000000000000000002"

	t.Run("forward only raises test", func(t *testing.T) {
		vector := time.NewVersionVector()
		vector.Forward(actorA, 5)
		assert.Equal(t, int64(5), vector.VersionOf(actorA))

		vector.Forward(actorA, 3)
		assert.Equal(t, int64(5), vector.VersionOf(actorA))

		vector.Forward(actorA, 7)
		assert.Equal(t, int64(7), vector.VersionOf(actorA))
	})

	t.Run("version of absent actor test", func(t *testing.T) {
		vector := time.NewVersionVector()
		assert.Equal(t, int64(0), vector.VersionOf(actorA))
	})

	t.Run("max merges entry-wise test", func(t *testing.T) {
		vector := time.NewVersionVector()
		vector.Set(actorA, 3)
		vector.Set(actorB, 7)

		other := time.NewVersionVector()
		other.Set(actorA, 5)
		other.Set(actorB, 2)

		vector.Max(other)
		assert.Equal(t, int64(5), vector.VersionOf(actorA))
		assert.Equal(t, int64(7), vector.VersionOf(actorB))
	})

	t.Run("deep copy is independent test", func(t *testing.T) {
		vector := time.NewVersionVector()
		vector.Set(actorA, 1)

		copied := vector.DeepCopy()
		copied.Set(actorA, 9)
		assert.Equal(t, int64(1), vector.VersionOf(actorA))
	})

	t.Run("marshal is deterministic test", func(t *testing.T) {
		vector := time.NewVersionVector()
		vector.Set(actorB, 2)
		vector.Set(actorA, 1)

		assert.Equal(t,
			"{000000000000000000000001:1,000000000000000000000002:2}",
			vector.Marshal(),
		)
	})
}

func TestTicket(t *testing.T) {
	actorA, err := time.ActorIDFromHex("000000000000000000000001")
	assert.NoError(t, err)
	actorB, err := time.ActorIDFromHex("000000000000000000000002")
	assert.NoError(t, err)

	t.Run("compare orders by lamport then actor test", func(t *testing.T) {
		assert.Equal(t, 1, time.NewTicket(2, actorA).Compare(time.NewTicket(1, actorB)))
		assert.Equal(t, -1, time.NewTicket(1, actorB).Compare(time.NewTicket(2, actorA)))
		assert.Equal(t, -1, time.NewTicket(1, actorA).Compare(time.NewTicket(1, actorB)))
		assert.Equal(t, 0, time.NewTicket(1, actorA).Compare(time.NewTicket(1, actorA)))
	})

	t.Run("after test", func(t *testing.T) {
		assert.True(t, time.NewTicket(2, actorA).After(time.NewTicket(1, actorA)))
		assert.True(t, time.NewTicket(1, actorB).After(time.NewTicket(1, actorA)))
		assert.False(t, time.NewTicket(1, actorA).After(time.NewTicket(1, actorA)))
	})

	t.Run("key test", func(t *testing.T) {
		ticket := time.NewTicket(7, actorA)
		assert.Equal(t, "7:000000000000000000000001", ticket.Key())
	})
}
