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

// Package documents provides the document management API of the server.
package documents

import (
	"context"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/server/backend"
	"github.com/driftsync/driftsync/server/backend/database"
)

// CreateDocument creates a document in the workspace. An empty docKey asks
// the server to generate one. Creating an existing key returns the existing
// document, which makes retried creates harmless.
func CreateDocument(
	ctx context.Context,
	be *backend.Backend,
	workspaceID string,
	docKey key.Key,
	title string,
) (*database.DocInfo, error) {
	if docKey == "" {
		docKey = key.New()
	}
	if err := docKey.Validate(); err != nil {
		return nil, err
	}

	return be.DB.EnsureDocInfo(ctx, workspaceID, docKey, title)
}

// FindDocument returns the document of the given key.
func FindDocument(
	ctx context.Context,
	be *backend.Backend,
	docKey key.Key,
) (*database.DocInfo, error) {
	if err := docKey.Validate(); err != nil {
		return nil, err
	}

	return be.DB.FindDocInfoByKey(ctx, docKey)
}

// ListDocuments returns the documents of the given workspace.
func ListDocuments(
	ctx context.Context,
	be *backend.Backend,
	workspaceID string,
) ([]*database.DocInfo, error) {
	return be.DB.FindDocInfosByWorkspace(ctx, workspaceID)
}

// RemoveDocument removes the document and its operation log. The document
// lock keeps the removal from racing an in-flight merge.
func RemoveDocument(
	ctx context.Context,
	be *backend.Backend,
	docKey key.Key,
) error {
	if err := docKey.Validate(); err != nil {
		return err
	}

	be.Lockers.Lock(docKey.String())
	defer func() {
		_ = be.Lockers.Unlock(docKey.String())
	}()

	return be.DB.RemoveDocInfo(ctx, docKey)
}
