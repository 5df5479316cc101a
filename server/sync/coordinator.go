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

// Package sync coordinates sessions, merges and fan-out. All writes to one
// document are serialized under its lock; documents are independent of each
// other.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/driftsync/driftsync/pkg/cmap"
	"github.com/driftsync/driftsync/pkg/document"
	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/document/time"
	"github.com/driftsync/driftsync/pkg/errors"
	"github.com/driftsync/driftsync/server/backend"
	"github.com/driftsync/driftsync/server/backend/database"
	"github.com/driftsync/driftsync/server/backend/pubsub"
	"github.com/driftsync/driftsync/server/logging"
	"github.com/driftsync/driftsync/server/offline"
	"github.com/driftsync/driftsync/server/oplog"
)

// loadBatchSize is the page size of operation log reads during catch-up.
const loadBatchSize = 500

// maxAppendRetries bounds retries of an append against a flaky store before
// the submission is reported as retriable failure to the client.
const maxAppendRetries = 3

// ErrSessionNotFound is returned when the session does not exist.
var ErrSessionNotFound = errors.NotFound("session not found").WithCode("ErrSessionNotFound")

// docEntry is a materialized document plus its position in the log.
type docEntry struct {
	doc *document.Document

	// serverSeq is the log position the materialized state is current up to.
	serverSeq int64

	// snapshotSeq is the log position of the last stored snapshot.
	snapshotSeq int64
}

// JoinRequest is a request to join a workspace.
type JoinRequest struct {
	WorkspaceID string
	UserID      string
	Metadata    interface{}

	// OfflineDocs lists the documents the client buffered work for while
	// disconnected. The coordinator drains those queues during the join.
	OfflineDocs []key.Key
}

// ReplayResult reports the outcome of draining one offline queue.
type ReplayResult struct {
	DocKey   key.Key `json:"doc_key"`
	Replayed int     `json:"replayed"`

	// Expired is set when the client reported buffered work but the queue's
	// retention window had already elapsed. The client must not assume its
	// buffered operations were applied.
	Expired bool `json:"expired"`
}

// JoinResult is the state handed to a client that joined a workspace.
type JoinResult struct {
	Session  *Session
	Presence []byte
	Replays  []ReplayResult
}

// SubmitResult reports the outcome of one operation batch.
type SubmitResult struct {
	// Version is the document version after the batch.
	Version int64 `json:"version"`

	// ServerSeq is the log position after the batch.
	ServerSeq int64 `json:"server_seq"`

	// Applied counts operations newly folded into the document.
	Applied int `json:"applied"`

	// Duplicates counts re-delivered operations absorbed without effect.
	Duplicates int `json:"duplicates"`
}

// DocState is the readable state of a document.
type DocState struct {
	DocKey    key.Key            `json:"doc_key"`
	Content   json.RawMessage    `json:"content"`
	Version   int64              `json:"version"`
	ServerSeq int64              `json:"server_seq"`
	Vector    time.VersionVector `json:"vector"`
}

// Coordinator owns the session registry and drives merges, offline replay
// and fan-out on top of the backend.
type Coordinator struct {
	be *backend.Backend

	sessions  *cmap.Map[string, *Session]
	documents *cmap.Map[key.Key, *docEntry]

	logger logging.Logger
}

// NewCoordinator creates an instance of Coordinator.
func NewCoordinator(be *backend.Backend) *Coordinator {
	return &Coordinator{
		be:        be,
		sessions:  cmap.New[string, *Session](),
		documents: cmap.New[key.Key, *docEntry](),
		logger:    logging.New("coordinator"),
	}
}

// Join registers a session in the workspace, announces the user, drains the
// user's offline queues and returns the current awareness state.
func (c *Coordinator) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	sub := c.be.PubSub.Subscribe(req.WorkspaceID, req.UserID)
	session := newSession(req.WorkspaceID, req.UserID, sub)
	c.sessions.Set(session.ID(), session)
	c.be.Metrics.AddWatchedConnections()

	info, err := c.be.Presence.SetPresence(ctx, req.WorkspaceID, req.UserID, "online", req.Metadata)
	if err != nil {
		// Awareness is best effort. The session still syncs documents when
		// the ephemeral store is down.
		c.logger.Warnf("set presence for %s: %v", req.UserID, err)
	} else {
		c.publishAwareness(pubsub.UserJoinedEvent, session, "", info)
	}

	var replays []ReplayResult
	for _, docKey := range req.OfflineDocs {
		replay, err := c.replayOffline(ctx, session, docKey)
		if err != nil {
			// The caller never learns the session ID, so nothing would call
			// Leave for it. Unwind the registration before failing the join.
			if perr := c.be.Presence.Remove(ctx, req.WorkspaceID, req.UserID); perr != nil {
				c.logger.Warnf("remove presence of %s: %v", req.UserID, perr)
			}
			c.be.PubSub.Unsubscribe(req.WorkspaceID, session.subscription)
			c.sessions.Delete(session.ID(), func(_ *Session, exists bool) bool {
				return exists
			})
			c.be.Metrics.RemoveWatchedConnections()
			return nil, err
		}
		replays = append(replays, replay)
	}

	presence, err := c.workspacePresence(ctx, req.WorkspaceID)
	if err != nil {
		c.logger.Warnf("list presence of %s: %v", req.WorkspaceID, err)
	}

	session.setState(StateSynced)

	return &JoinResult{
		Session:  session,
		Presence: presence,
		Replays:  replays,
	}, nil
}

// Leave removes the session, clears the user's awareness state and announces
// the departure.
func (c *Coordinator) Leave(ctx context.Context, sessionID string) error {
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	session.setState(StateDisconnected)

	if err := c.be.Presence.Remove(ctx, session.WorkspaceID(), session.UserID()); err != nil {
		c.logger.Warnf("remove presence of %s: %v", session.UserID(), err)
	}

	c.publishAwareness(pubsub.UserLeftEvent, session, "", map[string]string{
		"user_id": session.UserID(),
	})

	c.be.PubSub.Unsubscribe(session.WorkspaceID(), session.subscription)
	c.sessions.Delete(sessionID, func(_ *Session, exists bool) bool {
		return exists
	})
	c.be.Metrics.RemoveWatchedConnections()

	return nil
}

// FindSession returns the session of the given ID.
func (c *Coordinator) FindSession(sessionID string) (*Session, error) {
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	return session, nil
}

// SubmitOperations validates, appends and merges an operation batch, then
// fans the applied delta out to the workspace. Submitting the same batch
// twice converges to the same state and reports the repeats as duplicates.
func (c *Coordinator) SubmitOperations(
	ctx context.Context,
	sessionID string,
	docKey key.Key,
	encodedOps []*operations.Encoded,
) (*SubmitResult, error) {
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	return c.submit(ctx, session, docKey, encodedOps, database.OriginLive)
}

// BufferOffline stores an operation batch in the user's offline queue for
// replay on the next join. Validation happens now so a malformed batch is
// rejected while the client can still see it.
func (c *Coordinator) BufferOffline(
	ctx context.Context,
	userID string,
	docKey key.Key,
	encodedOps []*operations.Encoded,
) error {
	for _, encoded := range encodedOps {
		if err := encoded.Validate(); err != nil {
			return err
		}
	}

	return c.be.Offline.Enqueue(ctx, userID, docKey, encodedOps)
}

// GetState returns the materialized state of the document.
func (c *Coordinator) GetState(ctx context.Context, docKey key.Key) (*DocState, error) {
	c.be.Lockers.Lock(docKey.String())
	defer func() {
		_ = c.be.Lockers.Unlock(docKey.String())
	}()

	entry, err := c.loadDocument(ctx, docKey)
	if err != nil {
		return nil, err
	}

	return &DocState{
		DocKey:    docKey,
		Content:   json.RawMessage(entry.doc.Marshal()),
		Version:   entry.doc.Version(),
		ServerSeq: entry.serverSeq,
		Vector:    entry.doc.Vector(),
	}, nil
}

// GetSince returns the operations of the document after the given log
// position, for clients that catch up incrementally instead of reloading.
func (c *Coordinator) GetSince(
	ctx context.Context,
	docKey key.Key,
	serverSeq int64,
	limit int,
) ([]*operations.Encoded, int64, error) {
	infos, err := c.be.OpLog.Since(ctx, docKey, serverSeq, limit)
	if err != nil {
		return nil, 0, err
	}

	encoded := make([]*operations.Encoded, 0, len(infos))
	last := serverSeq
	for _, info := range infos {
		encoded = append(encoded, info.ToEncoded())
		last = info.ServerSeq
	}

	return encoded, last, nil
}

// UpdatePresence refreshes the user's presence lease and fans the update
// out.
func (c *Coordinator) UpdatePresence(
	ctx context.Context,
	sessionID, status string,
	metadata interface{},
) error {
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	info, err := c.be.Presence.SetPresence(ctx, session.WorkspaceID(), session.UserID(), status, metadata)
	if err != nil {
		return err
	}

	c.be.Metrics.AddAwarenessUpdate("presence")
	c.publishAwareness(pubsub.PresenceUpdateEvent, session, "", info)
	return nil
}

// UpdateTyping sets or clears the user's typing indicator and fans the
// update out.
func (c *Coordinator) UpdateTyping(
	ctx context.Context,
	sessionID string,
	docKey key.Key,
	isTyping bool,
) error {
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	if err := c.be.Presence.SetTyping(ctx, session.WorkspaceID(), session.UserID(), docKey, isTyping); err != nil {
		return err
	}

	c.be.Metrics.AddAwarenessUpdate("typing")
	c.publishAwareness(pubsub.TypingUpdateEvent, session, docKey, map[string]interface{}{
		"user_id":   session.UserID(),
		"doc_key":   docKey,
		"is_typing": isTyping,
	})
	return nil
}

// UpdateCursor stores the user's cursor and fans the update out.
func (c *Coordinator) UpdateCursor(
	ctx context.Context,
	sessionID string,
	docKey key.Key,
	pos string,
) error {
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	cursor, err := c.be.Presence.SetCursor(ctx, session.WorkspaceID(), session.UserID(), docKey, pos)
	if err != nil {
		return err
	}

	c.be.Metrics.AddAwarenessUpdate("cursor")
	c.publishAwareness(pubsub.CursorUpdateEvent, session, docKey, cursor)
	return nil
}

func (c *Coordinator) submit(
	ctx context.Context,
	session *Session,
	docKey key.Key,
	encodedOps []*operations.Encoded,
	origin string,
) (*SubmitResult, error) {
	if err := docKey.Validate(); err != nil {
		return nil, err
	}
	for _, encoded := range encodedOps {
		if err := encoded.Validate(); err != nil {
			return nil, err
		}
	}

	c.be.Lockers.Lock(docKey.String())
	defer func() {
		_ = c.be.Lockers.Unlock(docKey.String())
	}()

	entry, err := c.loadDocument(ctx, docKey)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	var delta []*operations.Encoded

	for _, encoded := range encodedOps {
		info, status, err := c.appendWithRetry(ctx, docKey, encoded, origin)
		if err != nil {
			// The batch stops at the first failed append. Everything before
			// it is durable and fanned out; the client resubmits the rest.
			c.flush(ctx, session, docKey, entry, result, delta)
			return result, err
		}

		if status == oplog.Duplicate {
			result.Duplicates++
			c.be.Metrics.AddDuplicateOperations(1)
			continue
		}

		op, err := info.ToOperation()
		if err != nil {
			return nil, err
		}

		applied := entry.doc.ApplyOperations(op)
		entry.serverSeq = info.ServerSeq
		if len(applied) > 0 {
			result.Applied++
			delta = append(delta, encoded)
		}
	}

	c.be.Metrics.AddPushedOperations(result.Applied)
	c.flush(ctx, session, docKey, entry, result, delta)

	return result, nil
}

func (c *Coordinator) flush(
	ctx context.Context,
	session *Session,
	docKey key.Key,
	entry *docEntry,
	result *SubmitResult,
	delta []*operations.Encoded,
) {
	result.Version = entry.doc.Version()
	result.ServerSeq = entry.serverSeq

	if entry.serverSeq-entry.snapshotSeq >= c.be.Config.SnapshotInterval {
		snapshot, err := entry.doc.Snapshot()
		if err != nil {
			c.logger.Errorf("snapshot %s: %v", docKey, err)
		} else if err := c.be.DB.UpdateDocSnapshot(
			ctx,
			docKey,
			entry.doc.Version(),
			entry.serverSeq,
			entry.doc.Vector(),
			snapshot,
		); err != nil {
			// The log already has the operations; a failed snapshot only
			// costs replay time on the next load.
			c.logger.Errorf("store snapshot of %s: %v", docKey, err)
		} else {
			entry.snapshotSeq = entry.serverSeq
		}
	}

	if len(delta) == 0 {
		return
	}

	c.be.PubSub.Publish(pubsub.Event{
		Type:        pubsub.DocUpdateEvent,
		Publisher:   session.UserID(),
		WorkspaceID: session.WorkspaceID(),
		DocKey:      docKey,
		Operations:  delta,
		Version:     entry.doc.Version(),
	})
	c.be.Metrics.AddBroadcast(pubsub.DocUpdateEvent)
}

func (c *Coordinator) appendWithRetry(
	ctx context.Context,
	docKey key.Key,
	encoded *operations.Encoded,
	origin string,
) (*database.OperationInfo, oplog.AppendStatus, error) {
	var info *database.OperationInfo
	var status oplog.AppendStatus

	operation := func() error {
		appended, appendStatus, err := c.be.OpLog.Append(ctx, docKey, encoded, origin)
		if err != nil {
			if errors.StatusOf(err).IsRetriable() {
				return err
			}
			return backoff.Permanent(err)
		}

		info = appended
		status = appendStatus
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAppendRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, 0, err
	}

	return info, status, nil
}

// replayOffline drains the user's offline queue for the document and pushes
// the buffered batches through the regular submission path.
func (c *Coordinator) replayOffline(
	ctx context.Context,
	session *Session,
	docKey key.Key,
) (ReplayResult, error) {
	entries, err := c.be.Offline.Drain(ctx, session.UserID(), docKey)
	if err != nil {
		return ReplayResult{}, err
	}

	if len(entries) == 0 {
		// The client reported buffered work but the retention window has
		// elapsed. Surface it instead of pretending the work was applied.
		c.logger.Warnf("offline queue of %s/%s expired: %v",
			session.UserID(), docKey, offline.ErrQueueExpired)
		return ReplayResult{DocKey: docKey, Expired: true}, nil
	}

	replay := ReplayResult{DocKey: docKey}
	for _, entry := range entries {
		result, err := c.submit(ctx, session, docKey, entry.Operations, database.OriginReplay)
		if err != nil {
			// Put the unapplied remainder back so the work survives the
			// failed replay.
			if qerr := c.be.Offline.Enqueue(ctx, session.UserID(), docKey, entry.Operations); qerr != nil {
				c.logger.Errorf("requeue offline ops of %s/%s: %v", session.UserID(), docKey, qerr)
			}
			return replay, err
		}
		replay.Replayed += result.Applied
		c.be.Metrics.AddReplayedOperations(result.Applied)
	}

	return replay, nil
}

func (c *Coordinator) loadDocument(ctx context.Context, docKey key.Key) (*docEntry, error) {
	if entry, ok := c.documents.Get(docKey); ok {
		return entry, nil
	}

	info, err := c.be.DB.FindDocInfoByKey(ctx, docKey)
	if err != nil {
		return nil, err
	}

	doc, err := info.ToDocument()
	if err != nil {
		return nil, err
	}

	entry := &docEntry{
		doc:         doc,
		serverSeq:   info.SnapshotSeq,
		snapshotSeq: info.SnapshotSeq,
	}

	for {
		infos, err := c.be.OpLog.Since(ctx, docKey, entry.serverSeq, loadBatchSize)
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			break
		}

		for _, opInfo := range infos {
			op, err := opInfo.ToOperation()
			if err != nil {
				return nil, err
			}
			doc.ApplyOperations(op)
			entry.serverSeq = opInfo.ServerSeq
		}

		if len(infos) < loadBatchSize {
			break
		}
	}

	c.documents.Set(docKey, entry)
	return entry, nil
}

// EvictDocument drops the materialized document from the cache. Removal
// paths call it so a later load does not resurrect deleted state.
func (c *Coordinator) EvictDocument(docKey key.Key) {
	c.documents.Delete(docKey, func(_ *docEntry, exists bool) bool {
		return exists
	})
}

func (c *Coordinator) workspacePresence(ctx context.Context, workspaceID string) ([]byte, error) {
	infos, err := c.be.Presence.ListWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(infos)
	if err != nil {
		return nil, fmt.Errorf("marshal presence list: %w", err)
	}
	return encoded, nil
}

func (c *Coordinator) publishAwareness(
	eventType string,
	session *Session,
	docKey key.Key,
	payload interface{},
) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		c.logger.Errorf("marshal %s payload: %v", eventType, err)
		return
	}

	c.be.PubSub.Publish(pubsub.Event{
		Type:        eventType,
		Publisher:   session.UserID(),
		WorkspaceID: session.WorkspaceID(),
		DocKey:      docKey,
		Payload:     encoded,
	})
	c.be.Metrics.AddBroadcast(eventType)
}
