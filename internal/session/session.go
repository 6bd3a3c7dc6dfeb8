// Package session 实现单个连接的生命周期：Anonymous -> Identified -> Closed
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/router"
)

type State byte

const (
	Anonymous State = iota
	Identified
	Closed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Identified:
		return "identified"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", byte(s))
	}
}

// Session 同一连接的事件由传输层按顺序调用，mu 只用于和 Close/detach 互斥
type Session struct {
	manager *Manager
	handle  connection.Handle

	mu     sync.Mutex
	state  State
	userID string

	closeOnce sync.Once
}

func (s *Session) Handle() connection.Handle {
	return s.handle
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// identity 在 Identified 状态下返回绑定的用户
func (s *Session) identity() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Identified {
		return "", fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	return s.userID, nil
}

// Announce 绑定身份。同一用户重复 announce 会重新绑定，不同用户返回 ErrIdentityMismatch
func (s *Session) Announce(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", router.ErrInvalidEvent)
	}

	s.mu.Lock()
	switch {
	case s.state == Closed:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	case s.state == Identified && s.userID != userID:
		bound := s.userID
		s.mu.Unlock()
		return fmt.Errorf("%w: bound to %s", ErrIdentityMismatch, bound)
	}
	previous := s.manager.registry.Bind(userID, s.handle)
	s.state = Identified
	s.userID = userID
	s.mu.Unlock()

	logger.InfoF("User %s announced on connection %s", userID, s.handle.ID())
	if previous != nil {
		s.manager.supersede(previous, userID)
	}
	return s.reply(protocol.Announced(userID))
}

// Join 订阅房间。状态检查和订阅在同一把锁内，避免 Close 之后复活订阅
func (s *Session) Join(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", router.ErrInvalidEvent)
	}
	s.mu.Lock()
	if s.state != Identified {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
	s.manager.membership.Join(roomID, s.handle)
	s.mu.Unlock()
	return s.reply(protocol.Joined(roomID))
}

func (s *Session) Leave(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", router.ErrInvalidEvent)
	}
	if _, err := s.identity(); err != nil {
		return err
	}
	s.manager.membership.Leave(roomID, s.handle)
	return s.reply(protocol.Left(roomID))
}

// resolveSender 发送者总是会话绑定的用户，显式给出的 senderId 必须一致
func (s *Session) resolveSender(claimed string) (string, error) {
	userID, err := s.identity()
	if err != nil {
		return "", err
	}
	if claimed != "" && claimed != userID {
		return "", fmt.Errorf("%w: sender %s does not match session user %s", router.ErrInvalidEvent, claimed, userID)
	}
	return userID, nil
}

// SendDirect 先实时投递再按需持久化，两者互不影响
func (s *Session) SendDirect(ctx context.Context, senderID, targetUserID, text string) (router.Result, error) {
	return s.send(ctx, router.KindDirect, senderID, targetUserID, text)
}

func (s *Session) SendGroup(ctx context.Context, senderID, roomID, text string) (router.Result, error) {
	return s.send(ctx, router.KindGroup, senderID, roomID, text)
}

func (s *Session) send(ctx context.Context, kind router.Kind, claimed, target, text string) (router.Result, error) {
	sender, err := s.resolveSender(claimed)
	if err != nil {
		return router.Result{}, err
	}

	result, err := s.manager.router.Route(router.ChatEvent{
		SenderID: sender,
		Kind:     kind,
		Target:   target,
		Payload:  text,
		Origin:   s.handle,
	})
	if err != nil {
		return router.Result{}, err
	}
	ackErr := s.reply(protocol.Sent(result.Outcome.String(), result.Recipients))

	if s.manager.opts.PersistOnSend {
		recordKind := database.KindDirect
		if kind == router.KindGroup {
			recordKind = database.KindGroup
		}
		if _, err := s.save(ctx, database.Record{Sender: sender, Receiver: target, Kind: recordKind, Content: text}); err != nil {
			return result, err
		}
	}
	return result, ackErr
}

func (s *Session) save(ctx context.Context, record database.Record) (database.Record, error) {
	if s.manager.store == nil {
		return database.Record{}, fmt.Errorf("%w: %w", ErrPersistence, database.ErrNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, s.manager.opts.OperationTimeout)
	defer cancel()
	saved, err := s.manager.store.Save(ctx, record)
	if err != nil {
		logger.ErrorF("Failed to persist message from %s to %s: %v", record.Sender, record.Receiver, err)
		return database.Record{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return saved, nil
}

// History 返回与某个用户的私聊记录或某个群的记录，只保留最近 limit 条
func (s *Session) History(ctx context.Context, with, roomID string, limit int) (database.ChatID, []database.Record, error) {
	userID, err := s.identity()
	if err != nil {
		return database.ChatID{}, nil, err
	}

	var chat database.ChatID
	switch {
	case roomID != "":
		chat = database.RoomChat(roomID)
	case with != "":
		chat = database.DirectChat(userID, with)
	default:
		return database.ChatID{}, nil, fmt.Errorf("%w: history needs a peer or a room", router.ErrInvalidEvent)
	}
	if s.manager.store == nil {
		return chat, nil, fmt.Errorf("%w: %w", ErrPersistence, database.ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.manager.opts.OperationTimeout)
	defer cancel()
	records, err := s.manager.store.History(ctx, chat)
	if err != nil {
		return chat, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if limit <= 0 {
		limit = s.manager.opts.HistoryLimit
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return chat, records, nil
}

func (s *Session) ListUsers(ctx context.Context) ([]database.User, error) {
	if _, err := s.identity(); err != nil {
		return nil, err
	}
	if s.manager.directory == nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectory, database.ErrNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, s.manager.opts.OperationTimeout)
	defer cancel()
	users, err := s.manager.directory.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	return users, nil
}

// ListGroups 返回当前用户的持久群组，加入房间仍需显式 join
func (s *Session) ListGroups(ctx context.Context) ([]database.Group, error) {
	userID, err := s.identity()
	if err != nil {
		return nil, err
	}
	if s.manager.directory == nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectory, database.ErrNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, s.manager.opts.OperationTimeout)
	defer cancel()
	groups, err := s.manager.directory.ListGroupsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	return groups, nil
}

// Close 解绑注册表并退出所有房间，无论触发原因只执行一次，且不可取消
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		userID := s.userID
		s.state = Closed
		s.manager.registry.Unbind(s.handle)
		rooms := s.manager.membership.LeaveAll(s.handle)
		s.mu.Unlock()

		s.manager.remove(s)
		if err := s.handle.Close(); err != nil {
			logger.DebugF("Error closing connection %s: %v", s.handle.ID(), err)
		}
		if userID != "" {
			logger.InfoF("User %s disconnected from %s (%s), left %d rooms", userID, s.handle.ID(), reason, len(rooms))
		} else {
			logger.DebugF("Anonymous connection %s closed (%s)", s.handle.ID(), reason)
		}
	})
}

// detach 被新连接替换后退回 Anonymous，清除房间订阅
func (s *Session) detach(userID string) {
	s.mu.Lock()
	// 替换过期：本连接已重新取得该用户的绑定
	if s.state != Identified || s.userID != userID || s.boundLocked(userID) {
		s.mu.Unlock()
		return
	}
	s.state = Anonymous
	s.userID = ""
	s.manager.membership.LeaveAll(s.handle)
	s.mu.Unlock()
	_ = s.reply(protocol.Error(protocol.CodeInvalidState, "superseded by a newer connection"))
}

// rebound 报告注册表是否仍把 userID 指向本连接
func (s *Session) rebound(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundLocked(userID)
}

// boundLocked 调用方需持有 s.mu。只有本会话的 Announce 会把注册表指向 s.handle
func (s *Session) boundLocked(userID string) bool {
	current, ok := s.manager.registry.Lookup(userID)
	return ok && current.ID() == s.handle.ID()
}

func (s *Session) reply(event protocol.Outbound) error {
	if err := s.handle.Send(event); err != nil {
		logger.WarnF("Failed to reply %s to connection %s: %v", event.Type, s.handle.ID(), err)
		return err
	}
	return nil
}
