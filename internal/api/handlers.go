// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/openlancer/relay/internal/auth"
	"github.com/openlancer/relay/internal/chat"
	"github.com/openlancer/relay/internal/config"
	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/models"
	"github.com/openlancer/relay/internal/presence"
	"github.com/openlancer/relay/internal/store"
	"github.com/openlancer/relay/internal/validation"
)

// Handler serves the REST endpoints and the websocket handshake.
type Handler struct {
	cfg     *config.Config
	st      store.Store
	authn   auth.Authenticator
	chat    *chat.Router
	hub     *chat.Hub
	tracker *presence.Tracker
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, st store.Store, authn auth.Authenticator, chatRouter *chat.Router, hub *chat.Hub, tracker *presence.Tracker) *Handler {
	return &Handler{
		cfg:     cfg,
		st:      st,
		authn:   authn,
		chat:    chatRouter,
		hub:     hub,
		tracker: tracker,
	}
}

// getUpgrader creates a websocket upgrader with origin checking.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates handshake origins against the configured
// CORS origins. Requests without an Origin header are allowed; browsers
// always send one, so this only admits non-browser clients.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket handshake rejected from unauthorized origin")
	return false
}

// HandleWebSocket authenticates the handshake, upgrades the connection, and
// hands it to the socket core. The handler goroutine becomes the read pump.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.authn.Authenticate(r)
	if err != nil {
		NewResponseWriter(w, r).Unauthorized("invalid or missing credential")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := chat.NewClient(h.chat, conn, user)
	h.chat.Connect(context.Background(), client)
	client.Run()
}

// authenticate resolves the REST caller's identity, writing a 401 on
// failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (models.UserID, bool) {
	user, err := h.authn.Authenticate(r)
	if err != nil {
		NewResponseWriter(w, r).Unauthorized("invalid or missing credential")
		return "", false
	}
	return user, true
}

// decodeBody unmarshals and validates a JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		NewResponseWriter(w, r).BadRequest("malformed JSON body")
		return false
	}
	if err := validation.Validate(out); err != nil {
		NewResponseWriter(w, r).ValidationError(err.Error())
		return false
	}
	return true
}

// writeStoreError maps store errors to REST responses.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		rw.NotFound("conversation not found")
	case errors.Is(err, store.ErrNotMember):
		rw.Forbidden("not a member of this conversation")
	case errors.Is(err, store.ErrUnavailable):
		rw.ServiceUnavailable("storage unavailable, retry")
	default:
		logging.Error().Err(err).Msg("store operation failed")
		rw.InternalError("operation failed")
	}
}

// HandleHealthLive reports process liveness.
func (h *Handler) HandleHealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HandleHealthReady reports readiness, probing the store through the
// circuit breaker.
func (h *Handler) HandleHealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.st.LastSeen(r.Context(), "_readiness_probe"); err != nil {
		NewResponseWriter(w, r).ServiceUnavailable("store not ready")
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":      "ready",
		"connections": h.hub.ConnCount(),
	})
}

// HandleListConversations returns every conversation the caller belongs to.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	convs, err := h.st.ConversationsFor(r.Context(), user)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(convs)
}

// HandleCreateGroup creates a group room with the caller as creator.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conv, err := h.st.CreateGroup(r.Context(), req.Name, user, req.MemberIDs)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	h.notifyConversation(conv)
	NewResponseWriter(w, r).Created(conv)
}

// HandleAddMember adds a user to a group room. Only current members may
// invite, and direct conversations are fixed at two members.
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req AddMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := models.ConversationID(chi.URLParam(r, "id"))
	conv, err := h.st.Conversation(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !conv.HasMember(user) {
		NewResponseWriter(w, r).Forbidden("not a member of this conversation")
		return
	}
	if conv.Type != models.ConversationGroup {
		NewResponseWriter(w, r).BadRequest("members can only be added to group rooms")
		return
	}

	updated, err := h.st.AddMember(r.Context(), id, req.UserID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	h.notifyConversation(updated)
	NewResponseWriter(w, r).Success(updated)
}

// HandleMessages returns a page of conversation history in sequence order.
// Query params: limit (default 50), before (sequence cursor).
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	id := models.ConversationID(chi.URLParam(r, "id"))
	conv, err := h.st.Conversation(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !conv.HasMember(user) {
		NewResponseWriter(w, r).Forbidden("not a member of this conversation")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			NewResponseWriter(w, r).BadRequest("limit must be between 1 and 500")
			return
		}
		limit = parsed
	}
	var beforeSeq uint64
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			NewResponseWriter(w, r).BadRequest("before must be a sequence number")
			return
		}
		beforeSeq = parsed
	}

	msgs, err := h.st.Messages(r.Context(), id, limit, beforeSeq)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(msgs)
}

// HandleOnlineUsers answers presence queries for initial UI population.
// Query param: ids, comma-separated user identifiers.
func (h *Handler) HandleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		NewResponseWriter(w, r).BadRequest("ids query parameter required")
		return
	}
	var ids []models.UserID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, models.UserID(part))
		}
	}

	statuses := h.tracker.Snapshot(ids)
	for i := range statuses {
		if statuses[i].Online || statuses[i].LastSeen != nil {
			continue
		}
		ts, err := h.st.LastSeen(r.Context(), statuses[i].UserID)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		statuses[i].LastSeen = ts
	}
	NewResponseWriter(w, r).Success(statuses)
}

// notifyConversation pushes updated conversation metadata to online members
// and subscribes their connections to the room.
func (h *Handler) notifyConversation(conv *models.Conversation) {
	for _, member := range conv.Members {
		h.hub.JoinUser(member, conv.ID)
	}
	evt, err := chat.NewEvent(chat.EventConversationUpdate, chat.ConversationPayload{Conversation: conv})
	if err != nil {
		logging.Error().Err(err).Msg("build conversation update event")
		return
	}
	h.hub.EmitToRoom(conv.ID, "", evt)
}
