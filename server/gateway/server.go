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
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/pkg/errors"
	"github.com/driftsync/driftsync/server/backend"
	"github.com/driftsync/driftsync/server/documents"
	"github.com/driftsync/driftsync/server/logging"
	"github.com/driftsync/driftsync/server/sync"
)

// userHeader carries the caller's identity. Authentication happens upstream;
// the gateway trusts the header it is handed.
const userHeader = "X-DriftSync-User"

// Server exposes the sync engine over HTTP and WebSocket.
type Server struct {
	conf        *Config
	be          *backend.Backend
	coordinator *sync.Coordinator

	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     logging.Logger
}

// NewServer creates an instance of Server.
func NewServer(conf *Config, be *backend.Backend, coordinator *sync.Coordinator) *Server {
	s := &Server{
		conf:        conf,
		be:          be,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logging.New("gateway"),
	}

	router := mux.NewRouter()
	router.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.handleHealth)
	router.Methods(http.MethodPost).Path("/workspaces/{workspace}/documents").HandlerFunc(s.handleCreateDocument)
	router.Methods(http.MethodGet).Path("/workspaces/{workspace}/documents").HandlerFunc(s.handleListDocuments)
	router.Methods(http.MethodGet).Path("/documents/{key}").HandlerFunc(s.handleGetDocument)
	router.Methods(http.MethodGet).Path("/documents/{key}/operations").HandlerFunc(s.handleGetOperations)
	router.Methods(http.MethodDelete).Path("/documents/{key}").HandlerFunc(s.handleRemoveDocument)
	router.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.handleWatch)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: router,
	}

	return s
}

// Start starts the server.
func (s *Server) Start() error {
	go func() {
		s.logger.Infof("serving gateway on %d", s.conf.Port)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server ListenAndServe: %v", err)
		}
	}()
	return nil
}

// Shutdown shuts down the server.
func (s *Server) Shutdown(graceful bool) {
	if graceful {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("HTTP server Shutdown: %v", err)
		}
		return
	}

	if err := s.httpServer.Close(); err != nil {
		s.logger.Errorf("HTTP server close: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["workspace"]

	var req struct {
		DocKey key.Key `json:"doc_key"`
		Title  string  `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode request: %w", errors.InvalidArgument(err.Error())))
		return
	}

	info, err := documents.CreateDocument(r.Context(), s.be, workspaceID, req.DocKey, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["workspace"]

	infos, err := documents.ListDocuments(r.Context(), s.be, workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docKey := key.Key(mux.Vars(r)["key"])

	state, err := s.coordinator.GetState(r.Context(), docKey)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	docKey := key.Key(mux.Vars(r)["key"])

	since, err := parseIntParam(r, "since", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	ops, last, err := s.coordinator.GetSince(r.Context(), docKey, since, int(limit))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
		"server_seq": last,
	})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	docKey := key.Key(mux.Vars(r)["key"])

	if err := documents.RemoveDocument(r.Context(), s.be, docKey); err != nil {
		writeError(w, err)
		return
	}
	s.coordinator.EvictDocument(docKey)

	writeJSON(w, http.StatusOK, map[string]string{"doc_key": docKey.String()})
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		writeError(w, errors.InvalidArgument("missing user identity").WithCode("ErrMissingUser"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn, userID)
	go client.writePump()
	client.readPump()
}

func parseIntParam(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, errors.InvalidArgument(err.Error()))
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.DefaultLogger().Warnf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.StatusOf(err) {
	case errors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeAlreadyExists:
		status = http.StatusConflict
	case errors.CodeFailedPrecondition:
		status = http.StatusPreconditionFailed
	case errors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{
		"code":    errors.CodeOf(err),
		"message": err.Error(),
	})
}
