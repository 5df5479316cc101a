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

// Package document provides the materialized document and the merge engine
// that folds operations into it.
package document

import (
	"fmt"

	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/document/time"
)

// Document is the materialized state of a logical document: the fold of all
// operations in its log. Replicas that have seen the same operation set hold
// identical state regardless of application order; ApplyOperations is
// commutative for causally independent operations and idempotent under
// duplicate delivery.
type Document struct {
	key         key.Key
	workspaceID string
	title       string

	// version counts the operations folded into this document. It increases
	// monotonically and identifies the materialized state for readers.
	version int64

	// vector records, per replica, the highest Lamport timestamp folded in.
	vector time.VersionVector

	root *crdt.Root
}

// New creates an empty Document.
func New(k key.Key, workspaceID, title string) *Document {
	return &Document{
		key:         k,
		workspaceID: workspaceID,
		title:       title,
		vector:      time.NewVersionVector(),
		root:        crdt.NewRoot(),
	}
}

// FromSnapshot restores a Document from a stored snapshot.
func FromSnapshot(
	k key.Key,
	workspaceID, title string,
	version int64,
	vector time.VersionVector,
	snapshot []byte,
) (*Document, error) {
	root, err := crdt.FromSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", k, err)
	}

	if vector == nil {
		vector = time.NewVersionVector()
	}

	return &Document{
		key:         k,
		workspaceID: workspaceID,
		title:       title,
		version:     version,
		vector:      vector,
		root:        root,
	}, nil
}

// ApplyOperations folds the given operations into the document in arrival
// order and returns the ones that were newly applied. Re-delivered
// operations are absorbed silently. A failed batch never corrupts prior
// state: the fold only ever adds to the root.
func (d *Document) ApplyOperations(ops ...operations.Operation) []operations.Operation {
	applied := make([]operations.Operation, 0, len(ops))

	for _, op := range ops {
		opKey := op.ID().Key()
		if d.root.HasApplied(opKey) {
			continue
		}

		op.Execute(d.root)
		d.root.MarkApplied(opKey)

		d.version++
		d.vector.Forward(op.ExecutedAt().ActorID().String(), op.ExecutedAt().Lamport())
		applied = append(applied, op)
	}

	return applied
}

// Key returns the key of this document.
func (d *Document) Key() key.Key {
	return d.key
}

// WorkspaceID returns the owning workspace of this document.
func (d *Document) WorkspaceID() string {
	return d.workspaceID
}

// Title returns the title of this document.
func (d *Document) Title() string {
	return d.title
}

// Version returns the current version of this document.
func (d *Document) Version() int64 {
	return d.version
}

// Vector returns a copy of the document's version vector.
func (d *Document) Vector() time.VersionVector {
	return d.vector.DeepCopy()
}

// Elements returns the live position-value pairs in position order.
func (d *Document) Elements() []crdt.Element {
	return d.root.Elements()
}

// Len returns the number of live positions.
func (d *Document) Len() int {
	return d.root.Len()
}

// Marshal returns the deterministic JSON encoding of the live elements.
func (d *Document) Marshal() string {
	return d.root.Marshal()
}

// Snapshot returns the full encoding of the document state, tombstones
// included, for persistence.
func (d *Document) Snapshot() ([]byte, error) {
	return d.root.Snapshot()
}
