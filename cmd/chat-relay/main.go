package main

import (
	"errors"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/directory"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/event"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/router"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/server"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/session"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/subscription"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		if errors.Is(err, config.ErrConfigCreated) {
			logger.Warn(err.Error())
			return
		}
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	store, err := database.Open(cfg)
	if err != nil {
		logger.FatalF("Error occured while initializing storage, details: %v", err)
		return
	}

	echo := router.EchoIncludeSender
	if !cfg.Router.EchoToSender {
		echo = router.EchoExcludeSender
	}
	registry := connection.NewRegistry()
	membership := subscription.NewRoomMembership()
	messageRouter := router.New(registry, membership, echo)
	dir := directory.NewCache(store, cfg.Directory.CacheSize, cfg.Directory.CacheTTLDuration())
	sessions := session.NewManager(registry, membership, messageRouter, store, dir, session.OptionsFromConfig(cfg))

	srv := server.New(cfg, registry, sessions, store, dir)
	// 先关闭连接，再断开存储
	cleaner.Add(srv)
	cleaner.Add(event.CallableFunc(store.Close))

	logger.InfoF("%s starting with %s storage", cfg.AppName, cfg.Storage.Driver)
	if err := srv.StartServer(); err != nil {
		logger.FatalF("Chat relay server start error: %v", err)
	}
}
