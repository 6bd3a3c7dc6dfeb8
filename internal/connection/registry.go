package connection

import (
	"slices"
	"sync"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
)

// Registry 维护 UserId -> Handle 的单射映射，是“谁在线”的唯一来源
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]Handle
	byHandle map[string]string // handle id -> user id
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]Handle),
		byHandle: make(map[string]string),
	}
}

// Bind 绑定或覆盖用户的连接，返回被替换的旧连接（若有）。旧连接不会被关闭
func (r *Registry) Bind(userID string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 同一连接之前绑定过其他用户时先解除，保持单射
	if owner, ok := r.byHandle[h.ID()]; ok && owner != userID {
		delete(r.byUser, owner)
	}

	var previous Handle
	if old, ok := r.byUser[userID]; ok && old.ID() != h.ID() {
		delete(r.byHandle, old.ID())
		previous = old
	}

	r.byUser[userID] = h
	r.byHandle[h.ID()] = userID
	logger.DebugF("User %s bound to connection %s", userID, h.ID())
	return previous
}

// Lookup 查询用户当前的连接
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byUser[userID]
	return h, ok
}

// Unbind 移除指向该连接的映射；已被新连接替换的用户不受影响，可重复调用
func (r *Registry) Unbind(h Handle) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byHandle[h.ID()]
	if !ok {
		return "", false
	}
	delete(r.byHandle, h.ID())
	if current, exists := r.byUser[userID]; exists && current.ID() == h.ID() {
		delete(r.byUser, userID)
	}
	logger.DebugF("User %s unbound from connection %s", userID, h.ID())
	return userID, true
}

// UserOf 返回连接当前绑定的用户
func (r *Registry) UserOf(h Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byHandle[h.ID()]
	return userID, ok
}

// Online 返回在线用户快照（已排序）
func (r *Registry) Online() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.RUnlock()
	slices.Sort(users)
	return users
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
