package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Online    int       `json:"online"`
	Sessions  int       `json:"sessions"`
	Echo      string    `json:"echo"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Online:    s.registry.Count(),
		Sessions:  s.sessions.Count(),
		Echo:      s.sessions.EchoPolicy().String(),
		Timestamp: time.Now().UTC(),
	})
}

type saveMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
	Kind     string `json:"kind"`
}

func (s *Server) operationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.Database.OperationTimeoutDuration())
}

func (s *Server) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.CodePersistenceFailed, database.ErrNotConfigured)
		return
	}
	var req saveMessageRequest
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeMalformedFrame, fmt.Errorf("%w: %v", protocol.ErrMalformedFrame, err))
		return
	}

	ctx, cancel := s.operationContext(r)
	defer cancel()
	record, err := s.store.Save(ctx, database.Record{
		Sender:   req.Sender,
		Receiver: req.Receiver,
		Kind:     s.messageKind(ctx, req),
		Content:  req.Content,
	})
	if err != nil {
		if errors.Is(err, database.ErrEmptyField) {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidEvent, err)
			return
		}
		logger.ErrorF("Failed to save message via api: %v", err)
		writeError(w, http.StatusInternalServerError, protocol.CodePersistenceFailed, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// messageKind 未指定 kind 时，接收方是发送者所在的群则按群消息保存
func (s *Server) messageKind(ctx context.Context, req saveMessageRequest) string {
	if req.Kind != "" || s.directory == nil || req.Sender == "" || req.Receiver == "" {
		return req.Kind
	}
	groups, err := s.directory.ListGroupsFor(ctx, req.Sender)
	if err != nil {
		logger.WarnF("Failed to resolve message kind for %s -> %s: %v", req.Sender, req.Receiver, err)
		return req.Kind
	}
	if slices.ContainsFunc(groups, func(g database.Group) bool { return g.ID == req.Receiver }) {
		return database.KindGroup
	}
	return req.Kind
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, chat database.ChatID) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.CodePersistenceFailed, database.ErrNotConfigured)
		return
	}
	ctx, cancel := s.operationContext(r)
	defer cancel()
	records, err := s.store.History(ctx, chat)
	if err != nil {
		if errors.Is(err, database.ErrEmptyField) {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidEvent, err)
			return
		}
		logger.ErrorF("Failed to load history %s: %v", chat, err)
		writeError(w, http.StatusInternalServerError, protocol.CodePersistenceFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDirectHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeHistory(w, r, database.DirectChat(vars["user1"], vars["user2"]))
}

func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, database.RoomChat(mux.Vars(r)["groupId"]))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.CodeDirectoryFailed, database.ErrNotConfigured)
		return
	}
	ctx, cancel := s.operationContext(r)
	defer cancel()
	users, err := s.directory.ListUsers(ctx)
	if err != nil {
		logger.ErrorF("Failed to list users: %v", err)
		writeError(w, http.StatusInternalServerError, protocol.CodeDirectoryFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.CodeDirectoryFailed, database.ErrNotConfigured)
		return
	}
	ctx, cancel := s.operationContext(r)
	defer cancel()
	groups, err := s.directory.ListGroupsFor(ctx, mux.Vars(r)["userId"])
	if err != nil {
		logger.ErrorF("Failed to list groups: %v", err)
		writeError(w, http.StatusInternalServerError, protocol.CodeDirectoryFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
