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

package document

import (
	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/document/time"
)

// Editor produces operations on behalf of one replica. It keeps the
// replica-local sequence and the Lamport clock: the clock ticks on every
// produced operation and forwards past every observed remote one, so a
// produced ticket is always higher than everything the editor has seen.
type Editor struct {
	actor   *time.ActorID
	seq     int64
	lamport int64
	vector  time.VersionVector
}

// NewEditor creates an Editor for the given replica.
func NewEditor(actor *time.ActorID) *Editor {
	return &Editor{
		actor:  actor,
		vector: time.NewVersionVector(),
	}
}

// Actor returns the replica this editor produces operations for.
func (e *Editor) Actor() *time.ActorID {
	return e.actor
}

// Observe forwards the editor's clock past a remote operation.
func (e *Editor) Observe(op operations.Operation) {
	if op.ExecutedAt().Lamport() > e.lamport {
		e.lamport = op.ExecutedAt().Lamport()
	}
	e.vector.Forward(op.ExecutedAt().ActorID().String(), op.ExecutedAt().Lamport())
}

func (e *Editor) next() (operations.ID, *time.Ticket, time.VersionVector) {
	e.seq++
	e.lamport++
	context := e.vector.DeepCopy()
	e.vector.Forward(e.actor.String(), e.lamport)
	return operations.NewID(e.actor, e.seq), time.NewTicket(e.lamport, e.actor), context
}

// InsertBetween produces an insert between the given neighbors. Empty left
// means the head of the document; empty right means the tail.
func (e *Editor) InsertBetween(left, right crdt.Pos, value string) (*operations.Insert, error) {
	id, ticket, context := e.next()

	pos, err := crdt.Between(left, right, e.actor, id.Seq())
	if err != nil {
		return nil, err
	}

	return operations.NewInsert(id, pos, value, ticket, context), nil
}

// Update produces an update of the given position.
func (e *Editor) Update(pos crdt.Pos, value string) *operations.Update {
	id, ticket, context := e.next()
	return operations.NewUpdate(id, pos, value, ticket, context)
}

// Delete produces a delete of the given position.
func (e *Editor) Delete(pos crdt.Pos) *operations.Delete {
	id, ticket, context := e.next()
	return operations.NewDelete(id, pos, ticket, context)
}
