// Package connection 实现了聊天中继的在线连接注册表
package connection

import (
	"errors"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrHandleClosed  = errors.New("connection closed")
)

// Handle 是传输层拥有的单个连接的引用，注册表只引用、不拥有
type Handle interface {
	// ID 每个 socket 唯一
	ID() string
	// Send 将事件放入该连接的发送队列，不阻塞
	Send(event protocol.Outbound) error
	// Close 关闭底层连接，可重复调用
	Close() error
}
