// Package router 根据在线注册表和房间订阅把聊天事件投递到连接
package router

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
)

var ErrInvalidEvent = errors.New("invalid chat event")

type Kind byte

const (
	KindDirect Kind = iota + 1
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Outcome 路由结果，不是错误
type Outcome byte

const (
	Delivered Outcome = iota + 1
	RecipientOffline
	EmptyRoom
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case RecipientOffline:
		return "recipientOffline"
	case EmptyRoom:
		return "emptyRoom"
	default:
		return fmt.Sprintf("Outcome(%d)", byte(o))
	}
}

// EchoPolicy 决定群消息是否回送给发送者自己的连接
type EchoPolicy byte

const (
	EchoIncludeSender EchoPolicy = iota
	EchoExcludeSender
)

func (e EchoPolicy) String() string {
	if e == EchoExcludeSender {
		return "exclude"
	}
	return "include"
}

// ChatEvent 是路由的最小单元，路由过程中不会被修改
type ChatEvent struct {
	SenderID string
	Kind     Kind
	// Target 私聊时为 UserId，群聊时为 RoomId
	Target  string
	Payload string
	// Origin 事件到达的连接，为空时按 SenderID 在注册表中查找
	Origin connection.Handle
}

func (e ChatEvent) validate() error {
	if e.SenderID == "" {
		return fmt.Errorf("%w: empty sender", ErrInvalidEvent)
	}
	if e.Target == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidEvent)
	}
	if e.Kind != KindDirect && e.Kind != KindGroup {
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidEvent, e.Kind)
	}
	return nil
}

type Result struct {
	Outcome Outcome
	// Recipients 成功入队的连接数
	Recipients int
	// Failed 入队失败的连接数（队列已满或已关闭）
	Failed int
}

type Router struct {
	registry   *connection.Registry
	membership RoomSource
	echo       EchoPolicy
}

// RoomSource 提供房间订阅者快照
type RoomSource interface {
	Subscribers(roomID string) []connection.Handle
}

func New(registry *connection.Registry, membership RoomSource, echo EchoPolicy) *Router {
	return &Router{registry: registry, membership: membership, echo: echo}
}

func (r *Router) EchoPolicy() EchoPolicy {
	return r.echo
}

// Route 同步扇出一个聊天事件，不访问持久化层
func (r *Router) Route(event ChatEvent) (Result, error) {
	if err := event.validate(); err != nil {
		return Result{}, err
	}
	switch event.Kind {
	case KindDirect:
		return r.routeDirect(event), nil
	default:
		return r.routeGroup(event), nil
	}
}

func (r *Router) routeDirect(event ChatEvent) Result {
	target, ok := r.registry.Lookup(event.Target)
	if !ok {
		logger.DebugF("Direct message from %s dropped, %s is offline", event.SenderID, event.Target)
		return Result{Outcome: RecipientOffline}
	}
	if err := target.Send(protocol.DeliverDirect(event.SenderID, event.Payload)); err != nil {
		// 连接仍登记但已关闭或队列已满，对发送者而言等同离线
		logger.WarnF("Failed to deliver direct message from %s to %s: %v", event.SenderID, event.Target, err)
		return Result{Outcome: RecipientOffline, Failed: 1}
	}
	return Result{Outcome: Delivered, Recipients: 1}
}

func (r *Router) routeGroup(event ChatEvent) Result {
	subscribers := r.membership.Subscribers(event.Target)
	if len(subscribers) == 0 {
		logger.DebugF("Group message from %s to empty room %s", event.SenderID, event.Target)
		return Result{Outcome: EmptyRoom}
	}

	skip := r.senderHandle(event)
	frame := protocol.DeliverGroup(event.SenderID, event.Target, event.Payload)
	result := Result{Outcome: Delivered}
	for _, h := range subscribers {
		if skip != nil && h.ID() == skip.ID() {
			continue
		}
		if err := h.Send(frame); err != nil {
			logger.WarnF("Failed to deliver group message to connection %s in room %s: %v", h.ID(), event.Target, err)
			result.Failed++
			continue
		}
		result.Recipients++
	}
	// 排除发送者后无人可投递，视为空房间
	if result.Recipients == 0 && result.Failed == 0 {
		result.Outcome = EmptyRoom
	}
	return result
}

func (r *Router) senderHandle(event ChatEvent) connection.Handle {
	if r.echo != EchoExcludeSender {
		return nil
	}
	if event.Origin != nil {
		return event.Origin
	}
	h, _ := r.registry.Lookup(event.SenderID)
	return h
}
