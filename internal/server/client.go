package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/session"
	"golang.org/x/time/rate"
)

type clientOptions struct {
	maxMessageSize int64
	sendQueueSize  int
	pingPeriod     time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	rateBurst      int
	rateInterval   time.Duration
}

// Client 单个 WebSocket 连接，实现 connection.Handle
type Client struct {
	id      string
	addr    string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	opts    clientOptions
	limiter *rate.Limiter
	session *session.Session

	closeOnce sync.Once
	// overflowed 因发送队列已满而关闭
	overflowed atomic.Bool
}

var _ connection.Handle = (*Client)(nil)

func newClient(conn *websocket.Conn, addr string, opts clientOptions) *Client {
	if opts.sendQueueSize <= 0 {
		opts.sendQueueSize = 256
	}
	c := &Client{
		id:   uuid.NewString(),
		addr: addr,
		conn: conn,
		send: make(chan []byte, opts.sendQueueSize),
		done: make(chan struct{}),
		opts: opts,
	}
	if opts.rateBurst > 0 && opts.rateInterval > 0 {
		every := rate.Limit(float64(opts.rateBurst) / opts.rateInterval.Seconds())
		c.limiter = rate.NewLimiter(every, opts.rateBurst)
	}
	if conn != nil && opts.maxMessageSize > 0 {
		conn.SetReadLimit(opts.maxMessageSize)
	}
	return c
}

func (c *Client) ID() string {
	return c.id
}

// Send 非阻塞入队；队列已满视为慢消费者，直接关闭连接
func (c *Client) Send(event protocol.Outbound) error {
	data, err := protocol.Encode(event)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return connection.ErrHandleClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		logger.WarnF("[%s] Send queue full, closing slow connection from %s", c.id, c.addr)
		c.overflowed.Store(true)
		_ = c.Close()
		return connection.ErrSendQueueFull
	}
}

// Close 通知写协程发送 close 帧并关闭底层连接，可重复调用
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait)); err != nil {
		logger.WarnF("[%s] Error setting initial read deadline: %v", c.id, err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait))
	})
}

// readPump 顺序处理同一连接的入站帧，退出时触发会话关闭
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.session.Close("transport closed")
		_ = c.Close()
	}()

	c.setupReadConnection()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			handleReadError(c.id, c.opts.maxMessageSize, err)
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			logger.WarnF("[%s] Rate limit exceeded (%d messages per %s), discarding frame", c.id, c.opts.rateBurst, c.opts.rateInterval)
			_ = c.Send(protocol.Error(protocol.CodeRateLimited, "rate limit exceeded"))
			continue
		}
		c.session.HandleFrame(ctx, raw)
	}
}

// writePump 串行写出发送队列，每次唤醒尽量把已排队的帧一起写完
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeMessage(message) || !c.writeQueuedMessages() {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				_ = c.Close()
				return
			}
		case <-c.done:
			c.writeCloseMessage()
			return
		}
	}
}

func (c *Client) writeMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeWait)); err != nil {
		logger.WarnF("[%s] Error setting write deadline: %v", c.id, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			logger.WarnF("[%s] Error writing message: %v", c.id, err)
		}
		return false
	}
	return true
}

func (c *Client) writeQueuedMessages() bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		if !c.writeMessage(<-c.send) {
			return false
		}
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeWait)); err != nil {
		logger.WarnF("[%s] Error setting write deadline for ping: %v", c.id, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			logger.WarnF("[%s] Error writing ping message: %v", c.id, err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() {
	code, reason := websocket.CloseNormalClosure, ""
	if c.overflowed.Load() {
		// 慢消费者不再排空队列，尽快关闭以便解绑
		code, reason = websocket.CloseTryAgainLater, "send queue full"
	} else {
		// 先把已排队的帧写完，保证 logout 前的回复不丢
		c.writeQueuedMessages()
	}
	deadline := time.Now().Add(c.opts.writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
		logger.DebugF("[%s] Error writing close message: %v", c.id, err)
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		logger.WarnF("[%s] Error closing connection: %v", c.id, err)
	}
}
