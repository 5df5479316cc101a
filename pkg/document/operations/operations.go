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

// Package operations provides the edit operations of a document and their
// wire encoding.
package operations

import (
	"strconv"

	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/time"
	"github.com/driftsync/driftsync/pkg/errors"
)

// ErrInvalidOperation is returned when a submitted operation is malformed.
// It is terminal: the operation is rejected, never retried.
var ErrInvalidOperation = errors.InvalidArgument("invalid operation").WithCode("ErrInvalidOperation")

// ID identifies an operation uniquely across all replicas: the replica that
// produced it plus the replica-local sequence number. Duplicate delivery is
// detected by this ID.
type ID struct {
	actor *time.ActorID
	seq   int64
}

// NewID creates an instance of ID.
func NewID(actor *time.ActorID, seq int64) ID {
	return ID{actor: actor, seq: seq}
}

// Actor returns the replica that produced the operation.
func (id ID) Actor() *time.ActorID {
	return id.actor
}

// Seq returns the replica-local sequence number.
func (id ID) Seq() int64 {
	return id.seq
}

// Key returns the deduplication key of this ID.
func (id ID) Key() string {
	return id.actor.String() + ":" + strconv.FormatInt(id.seq, 10)
}

// Operation is a single edit of a document. Implementations are the tagged
// variants Insert, Update and Delete.
type Operation interface {
	// ID returns the unique ID of the operation.
	ID() ID

	// Pos returns the position key the operation targets.
	Pos() crdt.Pos

	// ExecutedAt returns the logical timestamp of the operation.
	ExecutedAt() *time.Ticket

	// Context returns the version vector of the state the operation was
	// generated against.
	Context() time.VersionVector

	// Execute folds the operation into the given root. It returns whether
	// the visible state changed.
	Execute(root *crdt.Root) bool
}
