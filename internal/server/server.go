// Package server 提供 WebSocket 接入、REST 历史与目录接口以及健康检查
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/session"
)

type Server struct {
	cfg       config.Config
	registry  *connection.Registry
	sessions  *session.Manager
	store     database.MessageStore
	directory database.Directory

	upgrader   websocket.Upgrader
	clientOpts clientOptions
	httpServer *http.Server

	// ctx 在 Shutdown 时取消，进行中的持久化调用随之返回
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(
	cfg config.Config,
	registry *connection.Registry,
	sessions *session.Manager,
	store database.MessageStore,
	directory database.Directory,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		sessions:  sessions,
		store:     store,
		directory: directory,
		clientOpts: clientOptions{
			maxMessageSize: cfg.Server.MaxMessageSize,
			sendQueueSize:  cfg.Server.SendQueueSize,
			pingPeriod:     cfg.Server.PingPeriod(),
			pongWait:       cfg.Server.PongWait(),
			writeWait:      cfg.Server.WriteWait(),
			rateBurst:      cfg.Server.RateLimitBurst,
			rateInterval:   cfg.Server.RateLimitInterval(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	origins := newOriginPolicy(cfg.Server.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.AppPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router 注册全部 HTTP 路由
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/message", s.handleSaveMessage).Methods(http.MethodPost)
	// group 和 private 需要先于 /{user1}/{user2} 注册
	api.HandleFunc("/message/group/{groupId}", s.handleGroupHistory).Methods(http.MethodGet)
	api.HandleFunc("/message/private/{user1}/{user2}", s.handleDirectHistory).Methods(http.MethodGet)
	api.HandleFunc("/message/{user1}/{user2}", s.handleDirectHistory).Methods(http.MethodGet)
	api.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/groups/{userId}", s.handleListGroups).Methods(http.MethodGet)
	return r
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(conn, r.RemoteAddr, s.clientOpts)
	client.session = s.sessions.Open(client)
	logger.DebugF("[%s] Accepted new connection from %s", client.id, r.RemoteAddr)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump(s.ctx)
	}()
}

// StartServer 阻塞监听，直到 Shutdown 被调用
func (s *Server) StartServer() error {
	logger.InfoF("Chat relay listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收新请求，关闭所有会话并等待连接协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down chat relay server")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.sessions.CloseAll("server shutdown")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("All connections closed")
	case <-ctx.Done():
		logger.Warn("Shutdown timeout reached, some connections may still be open")
		return ctx.Err()
	}
	return err
}

// Invoke 供 cleaner 调用
func (s *Server) Invoke(ctx context.Context) error {
	return s.Shutdown(ctx)
}
