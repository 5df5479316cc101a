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

package sync

import (
	"sync"

	"github.com/rs/xid"

	"github.com/driftsync/driftsync/server/backend/pubsub"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateJoined means the session is registered but has not finished its
	// initial catch-up yet.
	StateJoined State = iota

	// StateSynced means the session has caught up and receives live events.
	StateSynced

	// StateDisconnected means the session has left. Operations arriving for
	// a disconnected session go to the offline queue.
	StateDisconnected
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateJoined:
		return "joined"
	case StateSynced:
		return "synced"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one live connection of a user to a workspace.
type Session struct {
	id          string
	userID      string
	workspaceID string

	mu           sync.RWMutex
	state        State
	subscription *pubsub.Subscription
}

func newSession(workspaceID, userID string, sub *pubsub.Subscription) *Session {
	return &Session{
		id:           xid.New().String(),
		userID:       userID,
		workspaceID:  workspaceID,
		state:        StateJoined,
		subscription: sub,
	}
}

// ID returns the unique ID of this session.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the user of this session.
func (s *Session) UserID() string {
	return s.userID
}

// WorkspaceID returns the workspace of this session.
func (s *Session) WorkspaceID() string {
	return s.workspaceID
}

// State returns the current state of this session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Events returns the event channel of this session's subscription.
func (s *Session) Events() <-chan pubsub.Event {
	return s.subscription.Events()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
