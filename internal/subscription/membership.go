// Package subscription 维护会话级别的房间订阅关系
package subscription

import (
	"slices"
	"sync"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
)

// RoomMembership 记录每个房间当前订阅的连接。
// 与持久化的群成员关系无关：连接断开后必须重新 join
type RoomMembership struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]connection.Handle // room id -> handle id -> handle
	byHandle map[string]map[string]struct{}          // handle id -> room ids
}

func NewRoomMembership() *RoomMembership {
	return &RoomMembership{
		rooms:    make(map[string]map[string]connection.Handle),
		byHandle: make(map[string]map[string]struct{}),
	}
}

// Join 订阅房间，重复订阅是幂等的；返回是否为新增
func (m *RoomMembership) Join(roomID string, h connection.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscribers, ok := m.rooms[roomID]
	if !ok {
		subscribers = make(map[string]connection.Handle)
		m.rooms[roomID] = subscribers
	}
	if _, exists := subscribers[h.ID()]; exists {
		return false
	}
	subscribers[h.ID()] = h

	joined, ok := m.byHandle[h.ID()]
	if !ok {
		joined = make(map[string]struct{})
		m.byHandle[h.ID()] = joined
	}
	joined[roomID] = struct{}{}
	logger.DebugF("Connection %s joined room %s", h.ID(), roomID)
	return true
}

// Leave 退订单个房间
func (m *RoomMembership) Leave(roomID string, h connection.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(roomID, h.ID())
}

// LeaveAll 在同一把写锁内退订连接的全部房间，返回被退订的房间
func (m *RoomMembership) LeaveAll(h connection.Handle) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := m.byHandle[h.ID()]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		m.leaveLocked(roomID, h.ID())
	}
	delete(m.byHandle, h.ID())
	slices.Sort(left)
	return left
}

func (m *RoomMembership) leaveLocked(roomID, handleID string) bool {
	subscribers, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := subscribers[handleID]; !exists {
		return false
	}
	delete(subscribers, handleID)
	// 空房间直接删除，避免 map 无限增长
	if len(subscribers) == 0 {
		delete(m.rooms, roomID)
	}
	if joined, ok := m.byHandle[handleID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(m.byHandle, handleID)
		}
	}
	logger.DebugF("Connection %s left room %s", handleID, roomID)
	return true
}

// Subscribers 返回房间订阅者的快照，调用方遍历时不受并发修改影响
func (m *RoomMembership) Subscribers(roomID string) []connection.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subscribers := m.rooms[roomID]
	result := make([]connection.Handle, 0, len(subscribers))
	for _, h := range subscribers {
		result = append(result, h)
	}
	return result
}

// RoomsOf 返回连接当前订阅的房间（已排序）
func (m *RoomMembership) RoomsOf(h connection.Handle) []string {
	m.mu.RLock()
	joined := m.byHandle[h.ID()]
	rooms := make([]string, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
	}
	m.mu.RUnlock()
	slices.Sort(rooms)
	return rooms
}

// RoomCount 返回至少有一个订阅者的房间数
func (m *RoomMembership) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
