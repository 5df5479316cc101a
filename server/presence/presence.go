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

// Package presence tracks who is in a workspace, who is typing and where
// their cursors are. All of it lives in the ephemeral store under TTLs, so a
// crashed client disappears by expiry without any cleanup path.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	gotime "time"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/server/backend/ephemeral"
)

// Default lifetimes of awareness state. Presence and cursors survive brief
// reconnects; typing is only meaningful for seconds.
const (
	DefaultPresenceTTL = 5 * gotime.Minute
	DefaultTypingTTL   = 30 * gotime.Second
	DefaultCursorTTL   = 5 * gotime.Minute
)

// Info is the stored presence of one user in a workspace.
type Info struct {
	UserID      string      `json:"user_id"`
	WorkspaceID string      `json:"workspace_id"`
	Status      string      `json:"status"`
	Metadata    interface{} `json:"metadata,omitempty"`
	UpdatedAt   gotime.Time `json:"updated_at"`
}

// Cursor is the stored cursor of one user in a document.
type Cursor struct {
	UserID    string      `json:"user_id"`
	DocKey    key.Key     `json:"doc_key"`
	Pos       string      `json:"pos"`
	UpdatedAt gotime.Time `json:"updated_at"`
}

// Registry reads and writes awareness state in the ephemeral store.
type Registry struct {
	store ephemeral.Store

	presenceTTL gotime.Duration
	typingTTL   gotime.Duration
	cursorTTL   gotime.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTLs overrides the default lifetimes.
func WithTTLs(presence, typing, cursor gotime.Duration) Option {
	return func(r *Registry) {
		r.presenceTTL = presence
		r.typingTTL = typing
		r.cursorTTL = cursor
	}
}

// NewRegistry creates an instance of Registry.
func NewRegistry(store ephemeral.Store, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		presenceTTL: DefaultPresenceTTL,
		typingTTL:   DefaultTypingTTL,
		cursorTTL:   DefaultCursorTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func presenceKey(workspaceID, userID string) string {
	return fmt.Sprintf("presence:%s:%s", workspaceID, userID)
}

func typingKey(workspaceID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", workspaceID, userID)
}

func cursorKey(workspaceID, userID string) string {
	return fmt.Sprintf("cursor:%s:%s", workspaceID, userID)
}

// SetPresence marks the user present in the workspace and refreshes the
// lease.
func (r *Registry) SetPresence(
	ctx context.Context,
	workspaceID, userID, status string,
	metadata interface{},
) (*Info, error) {
	info := &Info{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Status:      status,
		Metadata:    metadata,
		UpdatedAt:   gotime.Now(),
	}

	encoded, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal presence: %w", err)
	}

	if err := r.store.Set(ctx, presenceKey(workspaceID, userID), encoded, r.presenceTTL); err != nil {
		return nil, err
	}

	return info, nil
}

// GetPresence returns the presence of the user, or ErrKeyNotFound when the
// lease has expired.
func (r *Registry) GetPresence(
	ctx context.Context,
	workspaceID, userID string,
) (*Info, error) {
	encoded, err := r.store.Get(ctx, presenceKey(workspaceID, userID))
	if err != nil {
		return nil, err
	}

	info := &Info{}
	if err := json.Unmarshal(encoded, info); err != nil {
		return nil, fmt.Errorf("unmarshal presence: %w", err)
	}
	return info, nil
}

// ListWorkspace returns the presence of every user currently in the
// workspace.
func (r *Registry) ListWorkspace(
	ctx context.Context,
	workspaceID string,
) ([]*Info, error) {
	keys, err := r.store.Keys(ctx, presenceKey(workspaceID, "*"))
	if err != nil {
		return nil, err
	}

	var infos []*Info
	for _, k := range keys {
		encoded, err := r.store.Get(ctx, k)
		if err != nil {
			// Expired between scan and read.
			continue
		}

		info := &Info{}
		if err := json.Unmarshal(encoded, info); err != nil {
			return nil, fmt.Errorf("unmarshal presence: %w", err)
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// SetTyping marks or clears the typing indicator of the user. Clearing
// deletes the key instead of waiting out the TTL so the indicator drops
// immediately.
func (r *Registry) SetTyping(
	ctx context.Context,
	workspaceID, userID string,
	docKey key.Key,
	isTyping bool,
) error {
	k := typingKey(workspaceID, userID)
	if !isTyping {
		return r.store.Delete(ctx, k)
	}

	return r.store.Set(ctx, k, []byte(docKey), r.typingTTL)
}

// ListTyping returns the users currently typing in the workspace.
func (r *Registry) ListTyping(
	ctx context.Context,
	workspaceID string,
) (map[string]key.Key, error) {
	keys, err := r.store.Keys(ctx, typingKey(workspaceID, "*"))
	if err != nil {
		return nil, err
	}

	typing := make(map[string]key.Key)
	prefix := typingKey(workspaceID, "")
	for _, k := range keys {
		docKey, err := r.store.Get(ctx, k)
		if err != nil {
			continue
		}
		typing[strings.TrimPrefix(k, prefix)] = key.Key(docKey)
	}

	return typing, nil
}

// SetCursor stores the cursor of the user.
func (r *Registry) SetCursor(
	ctx context.Context,
	workspaceID, userID string,
	docKey key.Key,
	pos string,
) (*Cursor, error) {
	cursor := &Cursor{
		UserID:    userID,
		DocKey:    docKey,
		Pos:       pos,
		UpdatedAt: gotime.Now(),
	}

	encoded, err := json.Marshal(cursor)
	if err != nil {
		return nil, fmt.Errorf("marshal cursor: %w", err)
	}

	if err := r.store.Set(ctx, cursorKey(workspaceID, userID), encoded, r.cursorTTL); err != nil {
		return nil, err
	}

	return cursor, nil
}

// ListCursors returns the cursors of every user in the workspace.
func (r *Registry) ListCursors(
	ctx context.Context,
	workspaceID string,
) ([]*Cursor, error) {
	keys, err := r.store.Keys(ctx, cursorKey(workspaceID, "*"))
	if err != nil {
		return nil, err
	}

	var cursors []*Cursor
	for _, k := range keys {
		encoded, err := r.store.Get(ctx, k)
		if err != nil {
			continue
		}

		cursor := &Cursor{}
		if err := json.Unmarshal(encoded, cursor); err != nil {
			return nil, fmt.Errorf("unmarshal cursor: %w", err)
		}
		cursors = append(cursors, cursor)
	}

	return cursors, nil
}

// Remove drops all awareness state of the user in the workspace. Called on
// clean leave; abrupt disconnects fall back to TTL expiry.
func (r *Registry) Remove(
	ctx context.Context,
	workspaceID, userID string,
) error {
	for _, k := range []string{
		presenceKey(workspaceID, userID),
		typingKey(workspaceID, userID),
		cursorKey(workspaceID, userID),
	} {
		if err := r.store.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
