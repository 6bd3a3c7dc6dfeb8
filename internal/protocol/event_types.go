// Package protocol 定义了聊天中继在 WebSocket 上交换的事件帧
package protocol

import "fmt"

// EventType 定义了事件帧的类型
type EventType byte

// 入站事件（客户端 -> 服务器）
const (
	ANNOUNCE    EventType = iota + 1 // 声明身份
	JOIN                             // 订阅房间
	LEAVE                            // 退订房间
	SEND_DIRECT                      // 私聊消息
	SEND_GROUP                       // 群聊消息
	HISTORY                          // 拉取历史
	LIST_USERS                       // 用户目录
	LIST_GROUPS                      // 当前用户所在群组
	LIST_ONLINE                      // 在线用户
	ROOMS                            // 当前连接订阅的房间
	LOGOUT                           // 主动登出
)

// 出站事件（服务器 -> 客户端）
const (
	ANNOUNCED EventType = iota + 64
	JOINED
	LEFT
	DELIVER_DIRECT
	DELIVER_GROUP
	SENT
	HISTORY_RESULT
	USERS
	GROUPS
	ONLINE
	ROOMS_RESULT
	ERROR
)

// EventTypeMap 将 EventType 映射到线上名称
var EventTypeMap = map[EventType]string{
	ANNOUNCE:       "announce",
	JOIN:           "join",
	LEAVE:          "leave",
	SEND_DIRECT:    "sendDirect",
	SEND_GROUP:     "sendGroup",
	HISTORY:        "history",
	LIST_USERS:     "listUsers",
	LIST_GROUPS:    "listGroups",
	LIST_ONLINE:    "listOnline",
	ROOMS:          "rooms",
	LOGOUT:         "logout",
	ANNOUNCED:      "announced",
	JOINED:         "joined",
	LEFT:           "left",
	DELIVER_DIRECT: "deliverDirect",
	DELIVER_GROUP:  "deliverGroup",
	SENT:           "sent",
	HISTORY_RESULT: "history",
	USERS:          "users",
	GROUPS:         "groups",
	ONLINE:         "online",
	ROOMS_RESULT:   "rooms",
	ERROR:          "error",
}

var inboundByName = map[string]EventType{}

// 兼容旧版 socket.io 客户端的事件名
var legacyInbound = map[string]EventType{
	"sendMessage":      SEND_DIRECT,
	"joinGroup":        JOIN,
	"sendGroupMessage": SEND_GROUP,
}

func init() {
	for t, name := range EventTypeMap {
		if t.Inbound() {
			inboundByName[name] = t
		}
	}
}

// String 返回 EventType 的线上名称
func (t EventType) String() string {
	if name, ok := EventTypeMap[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", byte(t))
}

// Inbound 报告该类型是否允许由客户端发送
func (t EventType) Inbound() bool {
	return t >= ANNOUNCE && t <= LOGOUT
}

// RequiresIdentity 报告该入站事件是否只能在 Identified 状态下处理
func (t EventType) RequiresIdentity() bool {
	return t.Inbound() && t != ANNOUNCE && t != LOGOUT
}

func (t EventType) MarshalText() ([]byte, error) {
	name, ok := EventTypeMap[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, byte(t))
	}
	return []byte(name), nil
}

// ParseInbound 根据线上名称解析入站事件类型
func ParseInbound(name string) (EventType, bool) {
	if t, ok := inboundByName[name]; ok {
		return t, true
	}
	t, ok := legacyInbound[name]
	return t, ok
}
