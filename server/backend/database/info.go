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

package database

import (
	gotime "time"

	"github.com/driftsync/driftsync/pkg/document"
	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/document/time"
)

// DocInfo is the stored metadata and snapshot of a document.
type DocInfo struct {
	// Key is the unique key of the document.
	Key key.Key `bson:"doc_key"`

	// WorkspaceID is the workspace the document belongs to.
	WorkspaceID string `bson:"workspace_id"`

	// Title is the human-readable title of the document.
	Title string `bson:"title"`

	// Version is the number of operations folded into Snapshot.
	Version int64 `bson:"version"`

	// ServerSeq is the last server sequence issued for this document's log.
	ServerSeq int64 `bson:"server_seq"`

	// SnapshotSeq is the server sequence the snapshot is current up to.
	// Loading replays only operations after this point.
	SnapshotSeq int64 `bson:"snapshot_seq"`

	// Snapshot is the encoded materialized state, tombstones included.
	Snapshot []byte `bson:"snapshot"`

	// Vector is the version vector of the snapshot, keyed by actor.
	Vector map[string]int64 `bson:"vector"`

	// CreatedAt is the time the document was created.
	CreatedAt gotime.Time `bson:"created_at"`

	// UpdatedAt is the time the snapshot was last stored.
	UpdatedAt gotime.Time `bson:"updated_at"`
}

// DeepCopy returns a copy of this DocInfo.
func (i *DocInfo) DeepCopy() *DocInfo {
	if i == nil {
		return nil
	}

	copied := *i
	if i.Snapshot != nil {
		copied.Snapshot = make([]byte, len(i.Snapshot))
		copy(copied.Snapshot, i.Snapshot)
	}
	if i.Vector != nil {
		copied.Vector = make(map[string]int64, len(i.Vector))
		for actor, lamport := range i.Vector {
			copied.Vector[actor] = lamport
		}
	}
	return &copied
}

// ToDocument materializes the stored snapshot as a Document.
func (i *DocInfo) ToDocument() (*document.Document, error) {
	return document.FromSnapshot(
		i.Key,
		i.WorkspaceID,
		i.Title,
		i.Version,
		time.VersionVector(i.Vector).DeepCopy(),
		i.Snapshot,
	)
}

// OperationInfo is a stored entry of a document's operation log.
type OperationInfo struct {
	// DocKey is the document the operation belongs to.
	DocKey key.Key `bson:"doc_key"`

	// Actor and Seq identify the operation. One (actor, seq) pair is stored
	// at most once per document, which is what makes replays harmless.
	Actor string `bson:"actor"`
	Seq   int64  `bson:"seq"`

	// ServerSeq is the position of this entry in the document's total order.
	ServerSeq int64 `bson:"server_seq"`

	Type    string           `bson:"type"`
	Pos     string           `bson:"pos"`
	Value   string           `bson:"value,omitempty"`
	Lamport int64            `bson:"lamport"`
	Context map[string]int64 `bson:"context,omitempty"`

	// Origin records how the operation reached the server, live or replayed
	// from an offline queue.
	Origin string `bson:"origin,omitempty"`

	// CreatedAt is the time the entry was appended.
	CreatedAt gotime.Time `bson:"created_at"`
}

// Operation origins.
const (
	OriginLive   = "live"
	OriginReplay = "replay"
)

// NewOperationInfo creates an OperationInfo from the wire form of an
// operation.
func NewOperationInfo(docKey key.Key, encoded *operations.Encoded, origin string) *OperationInfo {
	return &OperationInfo{
		DocKey:    docKey,
		Actor:     encoded.Actor,
		Seq:       encoded.Seq,
		Type:      encoded.Type,
		Pos:       encoded.Pos,
		Value:     encoded.Value,
		Lamport:   encoded.Lamport,
		Context:   encoded.Context,
		Origin:    origin,
		CreatedAt: gotime.Now(),
	}
}

// ToEncoded returns the wire form of this entry.
func (i *OperationInfo) ToEncoded() *operations.Encoded {
	return &operations.Encoded{
		Type:    i.Type,
		Actor:   i.Actor,
		Seq:     i.Seq,
		Pos:     i.Pos,
		Value:   i.Value,
		Lamport: i.Lamport,
		Context: i.Context,
	}
}

// ToOperation decodes this entry into an executable Operation.
func (i *OperationInfo) ToOperation() (operations.Operation, error) {
	return i.ToEncoded().Decode()
}

// DeepCopy returns a copy of this OperationInfo.
func (i *OperationInfo) DeepCopy() *OperationInfo {
	if i == nil {
		return nil
	}

	copied := *i
	if i.Context != nil {
		copied.Context = make(map[string]int64, len(i.Context))
		for actor, lamport := range i.Context {
			copied.Context[actor] = lamport
		}
	}
	return &copied
}
