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

// Package pubsub provides the in-process fan-out of workspace events.
package pubsub

import (
	gosync "sync"
	gotime "time"

	"github.com/rs/xid"

	"github.com/driftsync/driftsync/pkg/cmap"
	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/server/logging"
)

const (
	// publishTimeout is the timeout for publishing an event to a slow
	// subscriber before the event is dropped for that subscriber.
	publishTimeout = 100 * gotime.Millisecond
)

// Event types fanned out to workspace subscribers.
const (
	DocUpdateEvent      = "doc_update"
	UserJoinedEvent     = "user_joined"
	UserLeftEvent       = "user_left"
	PresenceUpdateEvent = "presence_update"
	TypingUpdateEvent   = "typing_update"
	CursorUpdateEvent   = "cursor_update"
)

// Event is a workspace event.
type Event struct {
	// Type is one of the event type constants.
	Type string `json:"type"`

	// Publisher is the user the event originated from. Fan-out excludes the
	// publisher's own subscriptions.
	Publisher string `json:"publisher"`

	// WorkspaceID is the workspace the event belongs to.
	WorkspaceID string `json:"workspace_id"`

	// DocKey is set on document events.
	DocKey key.Key `json:"doc_key,omitempty"`

	// Operations carries the applied delta of a DocUpdateEvent.
	Operations []*operations.Encoded `json:"operations,omitempty"`

	// Version is the document version after the delta.
	Version int64 `json:"version,omitempty"`

	// Payload carries awareness state for presence, typing and cursor
	// events.
	Payload []byte `json:"payload,omitempty"`
}

// Subscription is a registration of one connection to a workspace's events.
type Subscription struct {
	id         string
	subscriber string
	closeMu    gosync.RWMutex
	closed     bool
	events     chan Event
}

// NewSubscription creates an instance of Subscription.
func NewSubscription(subscriber string) *Subscription {
	return &Subscription{
		id:         xid.New().String(),
		subscriber: subscriber,
		// Buffered to absorb bursts without blocking publishers.
		events: make(chan Event, 1),
	}
}

// ID returns the unique ID of this subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Subscriber returns the user of this subscription.
func (s *Subscription) Subscriber() string {
	return s.subscriber
}

// Events returns the event channel of this subscription.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close closes this subscription. It waits for in-flight publishes to the
// subscription to finish before closing the channel.
func (s *Subscription) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.events)
}

// publish sends the given event to this subscription. It returns false when
// the subscription is already closed or the subscriber cannot take the event
// within the publish timeout.
func (s *Subscription) publish(event Event) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	case <-gotime.After(publishTimeout):
		return false
	}
}

type subscriptions struct {
	internalMap *cmap.Map[string, *Subscription]
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		internalMap: cmap.New[string, *Subscription](),
	}
}

func (s *subscriptions) Set(sub *Subscription) {
	s.internalMap.Set(sub.ID(), sub)
}

func (s *subscriptions) Values() []*Subscription {
	return s.internalMap.Values()
}

func (s *subscriptions) Delete(id string) {
	s.internalMap.Delete(id, func(sub *Subscription, exists bool) bool {
		if exists {
			sub.Close()
		}
		return exists
	})
}

func (s *subscriptions) Len() int {
	return s.internalMap.Len()
}

// PubSub is the in-process event hub. Subscriptions are grouped per
// workspace.
type PubSub struct {
	subscriptionsMap *cmap.Map[string, *subscriptions]
}

// New creates an instance of PubSub.
func New() *PubSub {
	return &PubSub{
		subscriptionsMap: cmap.New[string, *subscriptions](),
	}
}

// Subscribe subscribes the given user to the workspace's events.
func (m *PubSub) Subscribe(workspaceID, subscriber string) *Subscription {
	sub := NewSubscription(subscriber)

	subs := m.subscriptionsMap.Upsert(
		workspaceID,
		func(exists *subscriptions, found bool) *subscriptions {
			if !found {
				return newSubscriptions()
			}
			return exists
		},
	)
	subs.Set(sub)

	return sub
}

// Unsubscribe removes the given subscription from the workspace.
func (m *PubSub) Unsubscribe(workspaceID string, sub *Subscription) {
	subs, ok := m.subscriptionsMap.Get(workspaceID)
	if !ok {
		sub.Close()
		return
	}

	subs.Delete(sub.ID())

	m.subscriptionsMap.Delete(
		workspaceID,
		func(subs *subscriptions, exists bool) bool {
			return exists && subs.Len() == 0
		},
	)
}

// Publish fans the event out to every subscription of the workspace except
// the publisher's own. A subscriber that cannot take the event within the
// publish timeout misses it and catches up on its next read.
func (m *PubSub) Publish(event Event) {
	subs, ok := m.subscriptionsMap.Get(event.WorkspaceID)
	if !ok {
		return
	}

	for _, sub := range subs.Values() {
		if sub.Subscriber() == event.Publisher {
			continue
		}

		if !sub.publish(event) {
			logging.DefaultLogger().Warnf(
				"Publish(%s,%s) dropped for %s",
				event.Type,
				event.WorkspaceID,
				sub.Subscriber(),
			)
		}
	}
}

// SubscriberCount returns the number of subscriptions of the workspace.
func (m *PubSub) SubscriberCount(workspaceID string) int {
	subs, ok := m.subscriptionsMap.Get(workspaceID)
	if !ok {
		return 0
	}
	return subs.Len()
}
