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

// Insert places a new value at a freshly generated position key. Concurrent
// inserts between the same neighbors never collide because the position key
// embeds the generating replica.
type Insert struct {
	id         ID
	pos        crdt.Pos
	value      string
	executedAt *time.Ticket
	context    time.VersionVector
}

// NewInsert creates an instance of Insert.
func NewInsert(
	id ID,
	pos crdt.Pos,
	value string,
	executedAt *time.Ticket,
	context time.VersionVector,
) *Insert {
	return &Insert{
		id:         id,
		pos:        pos,
		value:      value,
		executedAt: executedAt,
		context:    context,
	}
}

// ID returns the unique ID of the operation.
func (o *Insert) ID() ID {
	return o.id
}

// Pos returns the position key the operation targets.
func (o *Insert) Pos() crdt.Pos {
	return o.pos
}

// Value returns the inserted value.
func (o *Insert) Value() string {
	return o.value
}

// ExecutedAt returns the logical timestamp of the operation.
func (o *Insert) ExecutedAt() *time.Ticket {
	return o.executedAt
}

// Context returns the causal context of the operation.
func (o *Insert) Context() time.VersionVector {
	return o.context
}

// Execute folds the insert into the given root.
func (o *Insert) Execute(root *crdt.Root) bool {
	return root.Write(o.pos, o.value, o.executedAt)
}
