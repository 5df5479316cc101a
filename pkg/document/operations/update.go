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

package operations

import (
	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/time"
)

// Update overwrites the value at an existing position. Concurrent updates to
// the same position resolve by the ticket's (lamport, actorID) order; an
// update racing a delete always loses to the tombstone.
type Update struct {
	id         ID
	pos        crdt.Pos
	value      string
	executedAt *time.Ticket
	context    time.VersionVector
}

// NewUpdate creates an instance of Update.
func NewUpdate(
	id ID,
	pos crdt.Pos,
	value string,
	executedAt *time.Ticket,
	context time.VersionVector,
) *Update {
	return &Update{
		id:         id,
		pos:        pos,
		value:      value,
		executedAt: executedAt,
		context:    context,
	}
}

// ID returns the unique ID of the operation.
func (o *Update) ID() ID {
	return o.id
}

// Pos returns the position key the operation targets.
func (o *Update) Pos() crdt.Pos {
	return o.pos
}

// Value returns the new value.
func (o *Update) Value() string {
	return o.value
}

// ExecutedAt returns the logical timestamp of the operation.
func (o *Update) ExecutedAt() *time.Ticket {
	return o.executedAt
}

// Context returns the causal context of the operation.
func (o *Update) Context() time.VersionVector {
	return o.context
}

// Execute folds the update into the given root. An update arriving before
// the insert it depends on still lands: the register is created and the
// late insert resolves by ticket order.
func (o *Update) Execute(root *crdt.Root) bool {
	return root.Write(o.pos, o.value, o.executedAt)
}
