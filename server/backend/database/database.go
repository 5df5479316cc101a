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

// Package database provides the durable store interface of the sync engine.
// The engine treats the store as a capability: any key-value store with
// append-log semantics for operations can implement it.
package database

import (
	"context"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/errors"
)

var (
	// ErrDocumentNotFound is returned when the document could not be found.
	ErrDocumentNotFound = errors.NotFound("document not found").WithCode("ErrDocumentNotFound")

	// ErrDocumentAlreadyExists is returned when a document with the same key
	// already exists.
	ErrDocumentAlreadyExists = errors.AlreadyExists("document already exists").WithCode("ErrDocumentAlreadyExists")

	// ErrOperationAlreadyExists is returned when an operation with the same
	// ID has already been appended. Callers absorb it: duplicate delivery is
	// not an error to the submitting client.
	ErrOperationAlreadyExists = errors.AlreadyExists("operation already exists").WithCode("ErrOperationAlreadyExists")

	// ErrConflictOnUpdate is returned when a snapshot update loses a version
	// race. The caller reloads and retries.
	ErrConflictOnUpdate = errors.FailedPrecond("conflict on update").WithCode("ErrConflictOnUpdate")

	// ErrStorageUnavailable is returned when the store cannot be reached.
	// Retriable: the client keeps the operation until acknowledged.
	ErrStorageUnavailable = errors.Unavailable("storage unavailable").WithCode("ErrStorageUnavailable")
)

// Database is the durable store that owns documents and their operation
// logs.
type Database interface {
	// Close closes all resources of this database.
	Close() error

	// EnsureDocInfo finds the document of the given key, creating it if it
	// does not exist yet.
	EnsureDocInfo(ctx context.Context, workspaceID string, docKey key.Key, title string) (*DocInfo, error)

	// FindDocInfoByKey finds the document of the given key.
	FindDocInfoByKey(ctx context.Context, docKey key.Key) (*DocInfo, error)

	// FindDocInfosByWorkspace returns the documents of the given workspace.
	FindDocInfosByWorkspace(ctx context.Context, workspaceID string) ([]*DocInfo, error)

	// RemoveDocInfo removes the document and its operation log.
	RemoveDocInfo(ctx context.Context, docKey key.Key) error

	// UpdateDocSnapshot stores the materialized state of the document.
	UpdateDocSnapshot(ctx context.Context, docKey key.Key, version int64, serverSeq int64, vector map[string]int64, snapshot []byte) error

	// CreateOperationInfo appends the operation to the document's log and
	// returns it with its assigned server sequence. It returns
	// ErrOperationAlreadyExists when an operation with the same (actor, seq)
	// has been appended before.
	CreateOperationInfo(ctx context.Context, info *OperationInfo) (*OperationInfo, error)

	// FindOperationInfosSinceServerSeq returns up to limit operations of the
	// document with a server sequence greater than the given one, in server
	// sequence order. The cursor makes catch-up reads restartable.
	FindOperationInfosSinceServerSeq(ctx context.Context, docKey key.Key, serverSeq int64, limit int) ([]*OperationInfo, error)
}
