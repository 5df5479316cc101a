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

package gateway

import (
	"context"
	"encoding/json"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/document/operations"
	"github.com/driftsync/driftsync/pkg/errors"
	"github.com/driftsync/driftsync/server/sync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Inbound message types.
const (
	msgJoin     = "join"
	msgOps      = "ops"
	msgOffline  = "offline_ops"
	msgPresence = "presence"
	msgTyping   = "typing"
	msgCursor   = "cursor"
	msgLeave    = "leave"
)

// inbound is the envelope of every client-to-server message.
type inbound struct {
	Type        string                `json:"type"`
	WorkspaceID string                `json:"workspace_id,omitempty"`
	Metadata    json.RawMessage       `json:"metadata,omitempty"`
	OfflineDocs []key.Key             `json:"offline_docs,omitempty"`
	DocKey      key.Key               `json:"doc_key,omitempty"`
	Operations  []*operations.Encoded `json:"operations,omitempty"`
	Status      string                `json:"status,omitempty"`
	IsTyping    bool                  `json:"is_typing,omitempty"`
	Pos         string                `json:"pos,omitempty"`
}

// client is one WebSocket connection. The read pump dispatches inbound
// messages; the write pump owns all writes to the connection.
type client struct {
	server *Server
	conn   *websocket.Conn
	userID string

	session *sync.Session
	send    chan []byte

	// closeMu orders enqueues against close so nothing sends on the closed
	// channel.
	closeMu gosync.Mutex
	closed  bool
}

func newClient(server *Server, conn *websocket.Conn, userID string) *client {
	return &client{
		server: server,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 64),
	}
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warnf("read websocket of %s: %v", c.userID, err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("ErrMalformedMessage", err.Error())
			continue
		}

		if msg.Type == msgLeave {
			return
		}
		c.dispatch(context.Background(), msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forwardEvents pushes workspace events from the session's subscription into
// the write pump until the subscription closes.
func (c *client) forwardEvents() {
	for event := range c.session.Events() {
		raw, err := json.Marshal(event)
		if err != nil {
			c.server.logger.Errorf("marshal event: %v", err)
			continue
		}
		c.enqueue(raw)
	}
}

func (c *client) dispatch(ctx context.Context, msg inbound) {
	switch msg.Type {
	case msgJoin:
		c.handleJoin(ctx, msg)
	case msgOps:
		c.handleOps(ctx, msg)
	case msgOffline:
		c.handleOffline(ctx, msg)
	case msgPresence:
		c.handlePresence(ctx, msg)
	case msgTyping:
		c.handleTyping(ctx, msg)
	case msgCursor:
		c.handleCursor(ctx, msg)
	default:
		c.sendError("ErrUnknownMessageType", msg.Type)
	}
}

func (c *client) handleJoin(ctx context.Context, msg inbound) {
	if c.session != nil {
		c.sendError("ErrAlreadyJoined", c.session.WorkspaceID())
		return
	}

	result, err := c.server.coordinator.Join(ctx, sync.JoinRequest{
		WorkspaceID: msg.WorkspaceID,
		UserID:      c.userID,
		Metadata:    msg.Metadata,
		OfflineDocs: msg.OfflineDocs,
	})
	if err != nil {
		c.sendFailure(err)
		return
	}

	c.session = result.Session
	go c.forwardEvents()

	c.sendJSON(map[string]interface{}{
		"type":       "joined",
		"session_id": result.Session.ID(),
		"presence":   json.RawMessage(result.Presence),
		"replays":    result.Replays,
	})
}

func (c *client) handleOps(ctx context.Context, msg inbound) {
	if c.session == nil {
		c.sendError("ErrNotJoined", "")
		return
	}

	result, err := c.server.coordinator.SubmitOperations(ctx, c.session.ID(), msg.DocKey, msg.Operations)
	if err != nil {
		c.sendFailure(err)
		return
	}

	c.sendJSON(map[string]interface{}{
		"type":    "ack",
		"doc_key": msg.DocKey,
		"result":  result,
	})
}

func (c *client) handleOffline(ctx context.Context, msg inbound) {
	if err := c.server.coordinator.BufferOffline(ctx, c.userID, msg.DocKey, msg.Operations); err != nil {
		c.sendFailure(err)
		return
	}

	c.sendJSON(map[string]interface{}{
		"type":    "buffered",
		"doc_key": msg.DocKey,
	})
}

func (c *client) handlePresence(ctx context.Context, msg inbound) {
	if c.session == nil {
		c.sendError("ErrNotJoined", "")
		return
	}

	if err := c.server.coordinator.UpdatePresence(ctx, c.session.ID(), msg.Status, msg.Metadata); err != nil {
		c.sendFailure(err)
	}
}

func (c *client) handleTyping(ctx context.Context, msg inbound) {
	if c.session == nil {
		c.sendError("ErrNotJoined", "")
		return
	}

	if err := c.server.coordinator.UpdateTyping(ctx, c.session.ID(), msg.DocKey, msg.IsTyping); err != nil {
		c.sendFailure(err)
	}
}

func (c *client) handleCursor(ctx context.Context, msg inbound) {
	if c.session == nil {
		c.sendError("ErrNotJoined", "")
		return
	}

	if err := c.server.coordinator.UpdateCursor(ctx, c.session.ID(), msg.DocKey, msg.Pos); err != nil {
		c.sendFailure(err)
	}
}

func (c *client) sendJSON(body interface{}) {
	raw, err := json.Marshal(body)
	if err != nil {
		c.server.logger.Errorf("marshal message: %v", err)
		return
	}
	c.enqueue(raw)
}

func (c *client) sendFailure(err error) {
	c.sendJSON(map[string]string{
		"type":    "error",
		"code":    errors.CodeOf(err),
		"message": err.Error(),
	})
}

func (c *client) sendError(code, message string) {
	c.sendJSON(map[string]string{
		"type":    "error",
		"code":    code,
		"message": message,
	})
}

func (c *client) enqueue(raw []byte) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}

	select {
	case c.send <- raw:
		c.closeMu.Unlock()
	default:
		c.closeMu.Unlock()
		// The write pump is wedged. Drop the connection; the client
		// reconnects and catches up from the log.
		c.server.logger.Warnf("send buffer of %s full, closing", c.userID)
		c.close()
	}
}

func (c *client) close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	if c.session != nil {
		if err := c.server.coordinator.Leave(context.Background(), c.session.ID()); err != nil {
			c.server.logger.Warnf("leave session of %s: %v", c.userID, err)
		}
	}
	close(c.send)
}
