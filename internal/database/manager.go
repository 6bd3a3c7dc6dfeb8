package database

import (
	"fmt"

	c "github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
)

// Open 按配置选择存储驱动。调用方负责在退出时 Close
func Open(config c.Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch config.Storage.Driver {
	case c.StorageMongo:
		store, err = ConnectDatabase(config)
	case c.StorageRedis:
		store, err = ConnectRedis(config)
	case c.StorageMemory:
		logger.Warn("Using in-memory storage, messages will be lost on restart")
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", ErrNotConfigured, config.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
