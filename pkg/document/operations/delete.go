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

// Delete tombstones a position. The position is never physically removed, so
// writes that raced the delete resolve deterministically instead of
// resurrecting the value.
type Delete struct {
	id         ID
	pos        crdt.Pos
	executedAt *time.Ticket
	context    time.VersionVector
}

// NewDelete creates an instance of Delete.
func NewDelete(
	id ID,
	pos crdt.Pos,
	executedAt *time.Ticket,
	context time.VersionVector,
) *Delete {
	return &Delete{
		id:         id,
		pos:        pos,
		executedAt: executedAt,
		context:    context,
	}
}

// ID returns the unique ID of the operation.
func (o *Delete) ID() ID {
	return o.id
}

// Pos returns the position key the operation targets.
func (o *Delete) Pos() crdt.Pos {
	return o.pos
}

// ExecutedAt returns the logical timestamp of the operation.
func (o *Delete) ExecutedAt() *time.Ticket {
	return o.executedAt
}

// Context returns the causal context of the operation.
func (o *Delete) Context() time.VersionVector {
	return o.context
}

// Execute folds the delete into the given root.
func (o *Delete) Execute(root *crdt.Root) bool {
	return root.Remove(o.pos, o.executedAt)
}
