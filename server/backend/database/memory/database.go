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

// Package memory implements the database interface using an in-memory
// transactional store. It backs tests and single-node deployments that can
// afford to lose data on restart.
package memory

import (
	"context"
	"fmt"
	gotime "time"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/server/backend/database"
)

// DB is an in-memory implementation of database.Database.
type DB struct {
	db *memdb.MemDB
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &DB{
		db: memDB,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// EnsureDocInfo finds the document of the given key, creating it if it does
// not exist yet.
func (d *DB) EnsureDocInfo(
	_ context.Context,
	workspaceID string,
	docKey key.Key,
	title string,
) (*database.DocInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docKey.String())
	if err != nil {
		return nil, fmt.Errorf("find document by key: %w", err)
	}
	if raw != nil {
		return raw.(*database.DocInfo).DeepCopy(), nil
	}

	now := gotime.Now()
	info := &database.DocInfo{
		Key:         docKey,
		WorkspaceID: workspaceID,
		Title:       title,
		Vector:      map[string]int64{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := txn.Insert(tblDocuments, info); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	txn.Commit()

	return info.DeepCopy(), nil
}

// FindDocInfoByKey finds the document of the given key.
func (d *DB) FindDocInfoByKey(
	_ context.Context,
	docKey key.Key,
) (*database.DocInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docKey.String())
	if err != nil {
		return nil, fmt.Errorf("find document by key: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", docKey, database.ErrDocumentNotFound)
	}

	return raw.(*database.DocInfo).DeepCopy(), nil
}

// FindDocInfosByWorkspace returns the documents of the given workspace.
func (d *DB) FindDocInfosByWorkspace(
	_ context.Context,
	workspaceID string,
) ([]*database.DocInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblDocuments, "workspace_id", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("find documents by workspace: %w", err)
	}

	var infos []*database.DocInfo
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		infos = append(infos, raw.(*database.DocInfo).DeepCopy())
	}

	return infos, nil
}

// RemoveDocInfo removes the document and its operation log.
func (d *DB) RemoveDocInfo(
	_ context.Context,
	docKey key.Key,
) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docKey.String())
	if err != nil {
		return fmt.Errorf("find document by key: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("%s: %w", docKey, database.ErrDocumentNotFound)
	}

	if err := txn.Delete(tblDocuments, raw); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	iter, err := txn.LowerBound(tblOperations, "doc_key_server_seq", docKey.String(), int64(0))
	if err != nil {
		return fmt.Errorf("find operations: %w", err)
	}
	var ops []interface{}
	for op := iter.Next(); op != nil; op = iter.Next() {
		if op.(*database.OperationInfo).DocKey != docKey {
			break
		}
		ops = append(ops, op)
	}
	for _, op := range ops {
		if err := txn.Delete(tblOperations, op); err != nil {
			return fmt.Errorf("delete operation: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// UpdateDocSnapshot stores the materialized state of the document.
func (d *DB) UpdateDocSnapshot(
	_ context.Context,
	docKey key.Key,
	version int64,
	serverSeq int64,
	vector map[string]int64,
	snapshot []byte,
) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docKey.String())
	if err != nil {
		return fmt.Errorf("find document by key: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("%s: %w", docKey, database.ErrDocumentNotFound)
	}

	info := raw.(*database.DocInfo).DeepCopy()
	if info.SnapshotSeq > serverSeq {
		return fmt.Errorf("snapshot seq %d behind %d: %w",
			serverSeq, info.SnapshotSeq, database.ErrConflictOnUpdate)
	}

	info.Version = version
	info.SnapshotSeq = serverSeq
	info.Vector = vector
	info.Snapshot = snapshot
	info.UpdatedAt = gotime.Now()

	if err := txn.Insert(tblDocuments, info); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	txn.Commit()

	return nil
}

// CreateOperationInfo appends the operation to the document's log and returns
// it with its assigned server sequence.
func (d *DB) CreateOperationInfo(
	_ context.Context,
	info *database.OperationInfo,
) (*database.OperationInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", info.DocKey.String())
	if err != nil {
		return nil, fmt.Errorf("find document by key: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", info.DocKey, database.ErrDocumentNotFound)
	}
	docInfo := raw.(*database.DocInfo).DeepCopy()

	dup, err := txn.First(tblOperations, "id", info.DocKey.String(), info.Actor, info.Seq)
	if err != nil {
		return nil, fmt.Errorf("find operation: %w", err)
	}
	if dup != nil {
		return nil, fmt.Errorf("%s:%d: %w",
			info.Actor, info.Seq, database.ErrOperationAlreadyExists)
	}

	docInfo.ServerSeq++
	appended := info.DeepCopy()
	appended.ServerSeq = docInfo.ServerSeq
	appended.CreatedAt = gotime.Now()

	if err := txn.Insert(tblOperations, appended); err != nil {
		return nil, fmt.Errorf("insert operation: %w", err)
	}
	if err := txn.Insert(tblDocuments, docInfo); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	txn.Commit()

	return appended.DeepCopy(), nil
}

// FindOperationInfosSinceServerSeq returns up to limit operations of the
// document after the given server sequence.
func (d *DB) FindOperationInfosSinceServerSeq(
	_ context.Context,
	docKey key.Key,
	serverSeq int64,
	limit int,
) ([]*database.OperationInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.LowerBound(
		tblOperations,
		"doc_key_server_seq",
		docKey.String(),
		serverSeq+1,
	)
	if err != nil {
		return nil, fmt.Errorf("find operations: %w", err)
	}

	var infos []*database.OperationInfo
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		info := raw.(*database.OperationInfo)
		if info.DocKey != docKey || (limit > 0 && len(infos) >= limit) {
			break
		}
		infos = append(infos, info.DeepCopy())
	}

	return infos, nil
}
