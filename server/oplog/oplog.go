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

// Package oplog is the append-only operation log of a document. The log is
// the source of truth; materialized documents are folds over it.
package oplog

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/server/backend/database"
)

// AppendStatus tells the caller how an append was resolved.
type AppendStatus int

const (
	// Accepted means the operation was appended and assigned a server
	// sequence.
	Accepted AppendStatus = iota

	// Duplicate means an operation with the same ID was appended before.
	// The caller treats it as success without re-applying.
	Duplicate
)

// Log appends and reads the per-document operation log.
type Log struct {
	db database.Database
}

// New creates an instance of Log.
func New(db database.Database) *Log {
	return &Log{db: db}
}

// Append appends the operation to the document's log. Re-delivery of an
// already-appended operation resolves to Duplicate, not an error: retried
// submissions and offline replays go through the same path as first
// delivery.
func (l *Log) Append(
	ctx context.Context,
	docKey key.Key,
	encoded *operations.Encoded,
	origin string,
) (*database.OperationInfo, AppendStatus, error) {
	info, err := l.db.CreateOperationInfo(
		ctx,
		database.NewOperationInfo(docKey, encoded, origin),
	)
	if err != nil {
		if errors.Is(err, database.ErrOperationAlreadyExists) {
			return nil, Duplicate, nil
		}
		return nil, 0, fmt.Errorf("append %s:%d: %w", encoded.Actor, encoded.Seq, err)
	}

	return info, Accepted, nil
}

// Since returns up to limit operations of the document after the given
// server sequence, in log order.
func (l *Log) Since(
	ctx context.Context,
	docKey key.Key,
	serverSeq int64,
	limit int,
) ([]*database.OperationInfo, error) {
	infos, err := l.db.FindOperationInfosSinceServerSeq(ctx, docKey, serverSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("read log of %s since %d: %w", docKey, serverSeq, err)
	}

	return infos, nil
}
