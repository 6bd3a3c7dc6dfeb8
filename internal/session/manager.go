package session

import (
	"context"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/router"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/subscription"
)

// SupersedePolicy 用户在新连接上 announce 时旧连接的处理方式
type SupersedePolicy byte

const (
	// SupersedeKeep 旧连接保持打开，但退回匿名状态且不再可寻址
	SupersedeKeep SupersedePolicy = iota
	// SupersedeClose 关闭旧连接
	SupersedeClose
)

type Options struct {
	Supersede     SupersedePolicy
	PersistOnSend bool
	HistoryLimit  int
	// OperationTimeout 单次持久化或目录查询的超时
	OperationTimeout time.Duration
}

// OptionsFromConfig 从配置文件生成会话选项
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Supersede:        SupersedeKeep,
		PersistOnSend:    cfg.Session.PersistOnSend,
		HistoryLimit:     cfg.Session.HistoryLimit,
		OperationTimeout: cfg.Database.OperationTimeoutDuration(),
	}
	if cfg.Session.CloseSuperseded {
		opts.Supersede = SupersedeClose
	}
	return opts
}

// Manager 为每个连接创建会话，并在关闭服务时统一清理
type Manager struct {
	registry   *connection.Registry
	membership *subscription.RoomMembership
	router     *router.Router
	store      database.MessageStore
	directory  database.Directory
	opts       Options

	mu       sync.Mutex
	sessions map[string]*Session // handle id -> session
}

func NewManager(
	registry *connection.Registry,
	membership *subscription.RoomMembership,
	r *router.Router,
	store database.MessageStore,
	directory database.Directory,
	opts Options,
) *Manager {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 5 * time.Second
	}
	return &Manager{
		registry:   registry,
		membership: membership,
		router:     r,
		store:      store,
		directory:  directory,
		opts:       opts,
		sessions:   make(map[string]*Session),
	}
}

// Open 为新连接创建处于 Anonymous 状态的会话
func (m *Manager) Open(h connection.Handle) *Session {
	s := &Session{manager: m, handle: h, state: Anonymous}
	m.mu.Lock()
	m.sessions[h.ID()] = s
	total := len(m.sessions)
	m.mu.Unlock()
	logger.DebugF("Session opened for connection %s, total sessions: %d", h.ID(), total)
	return s
}

func (m *Manager) lookup(h connection.Handle) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[h.ID()]
	return s, ok
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if current, ok := m.sessions[s.handle.ID()]; ok && current == s {
		delete(m.sessions, s.handle.ID())
	}
	m.mu.Unlock()
}

// EchoPolicy 返回路由器的群消息回送策略
func (m *Manager) EchoPolicy() router.EchoPolicy {
	return m.router.EchoPolicy()
}

// Count 返回当前存活的会话数（包括未 announce 的连接）
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll 关闭全部会话
func (m *Manager) CloseAll(reason string) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close(reason)
	}
	logger.InfoF("Closed %d sessions: %s", len(sessions), reason)
}

// Invoke 供 cleaner 在退出时调用
func (m *Manager) Invoke(_ context.Context) error {
	m.CloseAll("server shutdown")
	return nil
}

// supersede 处理被新连接替换的旧连接
func (m *Manager) supersede(previous connection.Handle, userID string) {
	old, ok := m.lookup(previous)
	if !ok {
		return
	}
	if old.rebound(userID) {
		logger.DebugF("Connection %s re-announced %s before being superseded, skipping", previous.ID(), userID)
		return
	}
	if m.opts.Supersede == SupersedeClose {
		logger.InfoF("Closing superseded connection %s of user %s", previous.ID(), userID)
		old.Close("superseded")
		return
	}
	logger.InfoF("Connection %s of user %s superseded, keeping it open", previous.ID(), userID)
	old.detach(userID)
}
